package models

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

type MediaKind string

const (
	MediaImage   MediaKind = "image"
	MediaVideo   MediaKind = "video"
	MediaUnknown MediaKind = "unknown"
)

type Job struct {
	JobID       uuid.UUID `json:"job_id" db:"job_id" validate:"omitempty"`
	FileName    string    `json:"file_name" db:"file_name" validate:"required,lte=255"`
	FilePath    string    `json:"file_path" db:"file_path" validate:"required"`
	Kind        MediaKind `json:"kind" db:"kind" validate:"omitempty"`
	FrameSkip   int       `json:"frame_skip" db:"frame_skip" validate:"min=0"`
	StartFrame  int       `json:"start_frame" db:"start_frame" validate:"min=0"`
	EndFrame    int       `json:"end_frame" db:"end_frame" validate:"min=-1"`
	Status      JobStatus `json:"status" db:"status" validate:"omitempty"`
	Error       string    `json:"error,omitempty" db:"error_message"`
	ResultPath  string    `json:"result_path,omitempty" db:"result_path"`
	Frames      int       `json:"frames" db:"frames"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	StartedAt   time.Time `json:"started_at" db:"started_at"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

func NewJob(fileName, filePath string, frameSkip, startFrame, endFrame int) *Job {
	return &Job{
		JobID:      uuid.New(),
		FileName:   fileName,
		FilePath:   filePath,
		FrameSkip:  frameSkip,
		StartFrame: startFrame,
		EndFrame:   endFrame,
		Status:     JobStatusQueued,
		CreatedAt:  time.Now(),
	}
}

type JobList struct {
	Jobs       []*Job `json:"jobs"`
	TotalCount int    `json:"total_count"`
	TotalPages int    `json:"total_pages"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	HasMore    bool   `json:"has_more"`
}

// JobEvent is published on lifecycle transitions.
type JobEvent struct {
	Type       string    `json:"type"`
	JobID      string    `json:"job_id"`
	FileName   string    `json:"file_name"`
	Kind       MediaKind `json:"kind"`
	Status     JobStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	ResultPath string    `json:"result_path,omitempty"`
	Frames     int       `json:"frames"`
	Timestamp  time.Time `json:"timestamp"`
}

// JobOutput locates the artifacts of the current or last job.
type JobOutput struct {
	JobID   string
	Path    string
	IsVideo bool
}
