package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amankumarsingh77/mhr-streamer/internal/jobs"
	"github.com/amankumarsingh77/mhr-streamer/internal/models"
	"github.com/go-redis/redis/v8"
)

const statusEventsSuffix = ":events"

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type jobsRedisRepo struct {
	redisClient *redis.Client
}

func NewJobsRedisRepo(redisClient *redis.Client) jobs.RedisRepository {
	return &jobsRedisRepo{
		redisClient: redisClient,
	}
}

// SetStatus stores the snapshot under key and announces it on key:events.
func (r *jobsRedisRepo) SetStatus(ctx context.Context, key string, status models.ProcessingStatus, ttl time.Duration) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	pipe := r.redisClient.Pipeline()
	pipe.HSet(ctx, key, "status", string(data), "progress", status.Progress, "updated_at", time.Now().Unix())
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	pipe.Publish(ctx, key+statusEventsSuffix, string(data))
	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

func (r *jobsRedisRepo) GetStatus(ctx context.Context, key string) (*models.ProcessingStatus, error) {
	data, err := r.redisClient.HGet(ctx, key, "status").Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	status := &models.ProcessingStatus{}
	if err := json.Unmarshal([]byte(data), status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return status, nil
}

func (r *jobsRedisRepo) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	locked, err := r.redisClient.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set lock %s: %w", key, err)
	}
	return locked, nil
}

// ReleaseLock deletes the lock only if owner still holds it.
func (r *jobsRedisRepo) ReleaseLock(ctx context.Context, key, owner string) error {
	if err := releaseLockScript.Run(ctx, r.redisClient, []string{key}, owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}
