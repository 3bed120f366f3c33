package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGuard keeps guard keys in Redis with native expiry.
type RedisGuard struct {
	client    redis.UniversalClient
	namespace string
}

func NewRedisGuard(client redis.UniversalClient, namespace string) *RedisGuard {
	return &RedisGuard{client: client, namespace: namespace}
}

func (g *RedisGuard) key(key string) string {
	if g.namespace == "" {
		return key
	}

	return g.namespace + ":" + key
}

func (g *RedisGuard) Seen(ctx context.Context, key string) (bool, error) {
	n, err := g.client.Exists(ctx, g.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key: %w", err)
	}

	return n > 0, nil
}

func (g *RedisGuard) MarkSeen(ctx context.Context, key string, ttl time.Duration) error {
	err := g.client.Set(ctx, g.key(key), "1", ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set idempotency key: %w", err)
	}

	return nil
}
