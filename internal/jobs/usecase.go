package jobs

import (
	"context"

	"github.com/amankumarsingh77/mhr-streamer/internal/artifact"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/amankumarsingh77/mhr-streamer/pkg/utils"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrInvalidUpload = errors.New("invalid upload")
	ErrBusy          = errors.New("server is busy, try again later")
	ErrNotConfigured = errors.New("feature is not configured")
	ErrJobNotFound   = errors.New("job not found")
)

type UseCase interface {
	Upload(ctx context.Context, input *models.UploadInput) (*models.Job, error)
	Progress(ctx context.Context) models.ProcessingStatus

	SingleResult(ctx context.Context) ([]byte, bool)
	Manifest(ctx context.Context) ([]byte, bool)
	Topology(ctx context.Context) ([]byte, bool)
	Frame(ctx context.Context, name string) ([]byte, error)
	ListFiles(ctx context.Context) ([]artifact.ResultEntry, error)

	ListJobs(ctx context.Context, pq *utils.Pagination) (*models.JobList, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	LiveStatus(ctx context.Context) (*models.ProcessingStatus, error)
}

// Runner is the single-job executor behind the upload endpoint.
type Runner interface {
	Submit(job *models.Job) error
	Running() bool
	Snapshot() models.ProcessingStatus
}
