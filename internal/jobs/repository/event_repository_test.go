package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama/mocks"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/amankumarsingh77/mhr-streamer/pkg/kafka"
)

func TestEventRepoPublish(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event models.JobEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.Type != "job.completed" || event.Frames != 4 || event.Status != models.JobStatusCompleted {
			return fmt.Errorf("unexpected event %+v", event)
		}
		return nil
	})

	repo := NewEventRepo(kafka.NewFromSyncProducer(sp), "mhr.jobs")
	err := repo.Publish(context.Background(), &models.JobEvent{
		Type:      "job.completed",
		JobID:     "1234",
		Status:    models.JobStatusCompleted,
		Frames:    4,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := sp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestEventRepoCancelledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	repo := NewEventRepo(kafka.NewFromSyncProducer(sp), "mhr.jobs")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := repo.Publish(ctx, &models.JobEvent{JobID: "1"}); err == nil {
		t.Fatalf("expected an error for a cancelled context")
	}
	if err := sp.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
