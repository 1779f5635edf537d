package media

import "context"

// Image is one decoded picture handed to the estimator.
// Data holds the encoded bytes (JPEG or PNG).
type Image struct {
	Path   string
	Data   []byte
	Width  int
	Height int
}

type VideoInfo struct {
	Width       int
	Height      int
	FPS         float64
	TotalFrames int
	Duration    float64
}

type ImageDecoder interface {
	DecodeImage(ctx context.Context, path string) (*Image, error)
}

// VideoDecoder gives random access to the frames of one file.
type VideoDecoder interface {
	Probe(ctx context.Context, path string) (*VideoInfo, error)
	ReadFrame(ctx context.Context, path string, index int) (*Image, error)
}
