// Package idempotency records which step units already ran so redelivered
// messages do not repeat side effects. It is a cache; step executions in the
// durable store remain the record of truth.
package idempotency

import (
	"context"
	"time"
)

// DefaultTTL is how long a processed step unit is remembered.
const DefaultTTL = 7 * 24 * time.Hour

type Guard interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkSeen(ctx context.Context, key string, ttl time.Duration) error
}

// StepKey is the guard key of one step of one execution.
func StepKey(executionID, stepID string) string {
	return "step-exec:" + executionID + ":" + stepID
}
