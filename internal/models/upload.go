package models

import "io"

type UploadInput struct {
	File       io.Reader `json:"-" validate:"required"`
	FileName   string    `json:"filename" validate:"required,lte=255"`
	FrameSkip  int       `json:"frame_skip" validate:"min=0,max=1000"`
	StartFrame int       `json:"start_frame" validate:"min=0"`
	EndFrame   int       `json:"end_frame" validate:"min=-1"`
}

type ArtifactObject struct {
	LocalPath   string
	Bucket      string
	Key         string
	ContentType string
}
