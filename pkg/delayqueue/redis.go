package delayqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "journey:delay-queue"

// RedisDelayQueue stores envelopes in a sorted set scored by due time in unix milliseconds.
type RedisDelayQueue struct {
	client redis.UniversalClient
	key    string
	logger *slog.Logger
}

// NewRedisDelayQueue creates a queue under namespace; an empty namespace uses the default key.
func NewRedisDelayQueue(logger *slog.Logger, client redis.UniversalClient, namespace string) *RedisDelayQueue {
	key := defaultRedisKey
	if namespace != "" {
		key = namespace + ":" + defaultRedisKey
	}

	return &RedisDelayQueue{
		client: client,
		key:    key,
		logger: logger.With("module", "delayqueue"),
	}
}

func (q *RedisDelayQueue) Push(ctx context.Context, envelope Envelope, dueAt time.Time) error {
	member, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	err = q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(dueAt.UnixMilli()),
		Member: member,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to push envelope %s: %w", envelope.ID, err)
	}

	return nil
}

// popDueScript removes and returns at most ARGV[2] members scored at or below ARGV[1].
var popDueScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
if #due > 0 then
	redis.call('ZREM', KEYS[1], unpack(due))
end
return due
`)

// MaxPopBatch bounds one PopDue call; larger or unbounded limits are reduced to it.
const MaxPopBatch = 1000

func (q *RedisDelayQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]Envelope, error) {
	if limit <= 0 || limit > MaxPopBatch {
		limit = MaxPopBatch
	}

	members, err := popDueScript.Run(ctx, q.client, []string{q.key}, now.UnixMilli(), limit).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to pop due envelopes: %w", err)
	}

	envelopes := make([]Envelope, 0, len(members))

	for _, member := range members {
		var envelope Envelope

		err := json.Unmarshal([]byte(member), &envelope)
		if err != nil {
			q.logger.ErrorContext(ctx, "dropping undecodable envelope", "error", err)

			continue
		}

		envelopes = append(envelopes, envelope)
	}

	return envelopes, nil
}

// Len returns the number of parked envelopes.
func (q *RedisDelayQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}
