package media

import (
	"bytes"
	"context"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"
)

type imageDecoder struct{}

func NewImageDecoder() ImageDecoder {
	return &imageDecoder{}
}

// DecodeImage verifies the file decodes and re-encodes it as JPEG so the
// estimator only ever receives one format.
func (d *imageDecoder) DecodeImage(ctx context.Context, path string) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(ErrDecode, "stat %s: %v", path, err)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(ErrDecode, "open %s: %v", path, err)
	}
	return encodeImage(path, img)
}

func encodeImage(path string, img image.Image) (*Image, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, errors.Wrapf(ErrDecode, "encode %s: %v", path, err)
	}
	b := img.Bounds()
	return &Image{
		Path:   path,
		Data:   buf.Bytes(),
		Width:  b.Dx(),
		Height: b.Dy(),
	}, nil
}
