package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds recent job snapshots so status polling does not hit the
// database on every request. All writes are best-effort: the repository
// remains the source of truth.
type Cache interface {
	SetJobSnapshot(ctx context.Context, jobID string, snapshot []byte, ttl time.Duration) error
	GetJobSnapshot(ctx context.Context, jobID string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// RedisCache implements Cache using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

// Ping verifies connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetJobSnapshot stores a serialized job snapshot.
func (c *RedisCache) SetJobSnapshot(ctx context.Context, jobID string, snapshot []byte, ttl time.Duration) error {
	return c.client.Set(ctx, JobSnapshotKey(jobID), snapshot, ttl).Err()
}

// GetJobSnapshot returns a serialized job snapshot if present.
func (c *RedisCache) GetJobSnapshot(ctx context.Context, jobID string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, JobSnapshotKey(jobID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Delete removes a key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
