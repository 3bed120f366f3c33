package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/journey/pkg/delayqueue"
	"github.com/dukex/journey/pkg/idempotency"
	"github.com/redis/go-redis/v9"
)

// Namespace prefixes every Redis key written by the journey binaries.
const Namespace = "journey"

// NewRedisClient connects to redisURL and pings it. An empty URL returns a nil
// client, selecting the in-process delay queue and guard.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil //nolint:nilnil
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// NewDelayQueue returns the Redis sorted-set queue when client is set.
// The in-process queue does not survive restarts and is not shared between workers.
func NewDelayQueue(logger *slog.Logger, client *redis.Client) delayqueue.DelayQueue {
	if client == nil {
		logger.Warn("Using in-memory delay queue, parked units are lost on restart")

		return delayqueue.NewMemoryDelayQueue()
	}

	return delayqueue.NewRedisDelayQueue(logger, client, Namespace)
}

// NewGuard returns the Redis idempotency guard when client is set.
func NewGuard(logger *slog.Logger, client *redis.Client) idempotency.Guard {
	if client == nil {
		logger.Warn("Using in-memory idempotency guard")

		return idempotency.NewMemoryGuard()
	}

	return idempotency.NewRedisGuard(client, Namespace)
}
