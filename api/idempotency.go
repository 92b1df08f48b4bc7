package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers idempotency keys so a retried order is placed once.
type Deduper interface {
	// Add records the key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove forgets a key, used when the order write fails.
	Remove(ctx context.Context, userID, key string) error
}

// RedisDeduper shares idempotency keys between instances through Redis.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return fmt.Sprintf("order-idem:%s:%s", userID, key)
}

func (r *RedisDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(userID, key), 1, r.ttl).Result()
}

func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}
