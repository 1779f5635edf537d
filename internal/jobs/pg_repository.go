package jobs

import (
	"context"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/amankumarsingh77/mhr-streamer/pkg/utils"
	"github.com/google/uuid"
)

type Repository interface {
	CreateJob(ctx context.Context, job *models.Job) (*models.Job, error)
	FinishJob(ctx context.Context, job *models.Job) error
	GetJobByID(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	GetJobs(ctx context.Context, pq *utils.Pagination) (*models.JobList, error)
}
