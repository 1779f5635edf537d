package models

type ProcessedFrame struct {
	FrameIdx  int    `json:"frame_idx"`
	File      string `json:"file"`
	NumPeople int    `json:"num_people"`
}

// VideoManifest lists the frames of a video job that produced a record.
type VideoManifest struct {
	VideoPath       string           `json:"video_path"`
	VideoName       string           `json:"video_name"`
	FPS             float64          `json:"fps"`
	TotalFrames     int              `json:"total_frames"`
	Width           int              `json:"width"`
	Height          int              `json:"height"`
	FrameSkip       int              `json:"frame_skip"`
	StartFrame      int              `json:"start_frame"`
	EndFrame        int              `json:"end_frame"`
	ProcessedFrames []ProcessedFrame `json:"processed_frames"`
}
