package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper records that a notification key was handled. MarkOnce returns true
// the first time a key is seen within its TTL.
type Deduper interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Close() error
}

// RedisDeduper implements notification idempotency keys on Redis SETNX.
type RedisDeduper struct {
	client *redis.Client
}

// NewRedisDeduper connects to Redis and verifies the connection.
func NewRedisDeduper(redisURL string) (*RedisDeduper, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisDeduper{client: client}, nil
}

// NewRedisDeduperWithClient wraps an existing Redis client.
func NewRedisDeduperWithClient(client *redis.Client) *RedisDeduper {
	return &RedisDeduper{client: client}
}

func (d *RedisDeduper) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark notification key: %w", err)
	}
	return ok, nil
}

func (d *RedisDeduper) Close() error {
	return d.client.Close()
}
