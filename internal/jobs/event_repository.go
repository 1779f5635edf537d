package jobs

import (
	"context"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
)

type EventRepository interface {
	Publish(ctx context.Context, event *models.JobEvent) error
}
