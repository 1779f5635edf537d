package repository

import (
	"context"

	"github.com/amankumarsingh77/mhr-streamer/internal/jobs"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/amankumarsingh77/mhr-streamer/pkg/kafka"
)

type eventRepo struct {
	producer kafka.Producer
	topic    string
}

func NewEventRepo(producer kafka.Producer, topic string) jobs.EventRepository {
	return &eventRepo{
		producer: producer,
		topic:    topic,
	}
}

// Publish keys events by job id so one job's events stay ordered within a partition.
func (e *eventRepo) Publish(ctx context.Context, event *models.JobEvent) error {
	return e.producer.SendJSON(ctx, e.topic, event.JobID, event)
}
