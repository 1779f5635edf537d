package worker

import (
	"context"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
)

// Observer receives job lifecycle notifications. Implementations must not
// block for long since they run on the worker goroutine.
type Observer interface {
	JobStarted(ctx context.Context, job *models.Job)
	StatusChanged(ctx context.Context, status models.ProcessingStatus)
	JobFinished(ctx context.Context, job *models.Job, status models.ProcessingStatus)
}

// Observers fans notifications out in order.
type Observers []Observer

func (o Observers) JobStarted(ctx context.Context, job *models.Job) {
	for _, obs := range o {
		obs.JobStarted(ctx, job)
	}
}

func (o Observers) StatusChanged(ctx context.Context, status models.ProcessingStatus) {
	for _, obs := range o {
		obs.StatusChanged(ctx, status)
	}
}

func (o Observers) JobFinished(ctx context.Context, job *models.Job, status models.ProcessingStatus) {
	for _, obs := range o {
		obs.JobFinished(ctx, job, status)
	}
}
