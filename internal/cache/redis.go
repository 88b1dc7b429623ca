package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis backs the cache with a Redis instance so retrieval results are
// shared across API instances. Failures degrade to cache misses.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing Redis client. The prefix namespaces keys so
// the cache can share an instance with the task queue.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "coachrag:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	// Best effort; a failed write just means a retrieval later.
	_ = r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}
