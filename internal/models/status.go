package models

// ProcessingStatus is the polled progress record of the active job.
type ProcessingStatus struct {
	IsProcessing  bool    `json:"is_processing" redis:"is_processing"`
	Progress      int     `json:"progress" redis:"progress"`
	Message       string  `json:"message" redis:"message"`
	CurrentFrame  int     `json:"current_frame" redis:"current_frame"`
	TotalFrames   int     `json:"total_frames" redis:"total_frames"`
	ETA           string  `json:"eta" redis:"eta"`
	Error         *string `json:"error" redis:"error"`
	ResultLocator *string `json:"result_path" redis:"result_path"`
	IsVideo       bool    `json:"is_video" redis:"is_video"`
}

// Terminal reports whether a poller can stop watching.
func (s ProcessingStatus) Terminal() bool {
	return s.Error != nil || s.ResultLocator != nil
}

// Clone returns a deep copy so the pointer fields are not shared.
func (s ProcessingStatus) Clone() ProcessingStatus {
	out := s
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	if s.ResultLocator != nil {
		r := *s.ResultLocator
		out.ResultLocator = &r
	}
	return out
}
