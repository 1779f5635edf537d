package jobs

import (
	"context"
	"time"

	"github.com/amankumarsingh77/mhr-streamer/internal/models"
)

type RedisRepository interface {
	SetStatus(ctx context.Context, key string, status models.ProcessingStatus, ttl time.Duration) error
	GetStatus(ctx context.Context, key string) (*models.ProcessingStatus, error)

	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}
