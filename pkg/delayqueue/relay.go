package delayqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/journey/pkg/eventbus"
)

// DefaultBatchSize is how many envelopes a relay pops at once.
const DefaultBatchSize = 500

// Relay moves due envelopes from a DelayQueue onto the event bus.
//
// Envelopes leave the queue before they are published. A process that dies
// in between loses at most one batch of wakes; the executions waiting on them
// stay active until the reaper cancels them.
type Relay struct {
	queue     DelayQueue
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
	batchSize int
}

func NewRelay(logger *slog.Logger, queue DelayQueue, publisher eventbus.EventPublisher) *Relay {
	return &Relay{
		queue:     queue,
		publisher: publisher,
		logger:    logger.With("module", "delay_relay"),
		now:       time.Now,
		batchSize: DefaultBatchSize,
	}
}

// WithClock overrides the time source.
func (r *Relay) WithClock(now func() time.Time) *Relay {
	r.now = now

	return r
}

// WithBatchSize overrides DefaultBatchSize. Sizes below one are ignored.
func (r *Relay) WithBatchSize(size int) *Relay {
	if size > 0 {
		r.batchSize = size
	}

	return r
}

// Tick publishes due envelopes batch by batch and returns how many were
// published. Envelopes that fail to publish are parked again and the tick
// stops, so the next tick retries them.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	now := r.now()
	published := 0

	for {
		due, err := r.queue.PopDue(ctx, now, r.batchSize)
		if err != nil {
			return published, fmt.Errorf("failed to pop due envelopes: %w", err)
		}

		count, err := r.relay(ctx, due, now)
		published += count

		if err != nil || len(due) < r.batchSize {
			if published > 0 {
				r.logger.DebugContext(ctx, "relayed delayed envelopes", "count", published)
			}

			return published, err
		}
	}
}

func (r *Relay) relay(ctx context.Context, due []Envelope, now time.Time) (int, error) {
	var (
		published int
		errs      []error
	)

	for _, envelope := range due {
		event, err := envelope.Decode()
		if err != nil {
			r.logger.ErrorContext(ctx, "dropping undecodable envelope", "envelope_id", envelope.ID, "type", envelope.Type, "error", err)

			continue
		}

		err = r.publisher.Publish(ctx, envelope.Key, event)
		if err == nil {
			published++

			continue
		}

		r.logger.WarnContext(ctx, "failed to relay envelope, parking it again", "envelope_id", envelope.ID, "error", err)

		pushErr := r.queue.Push(ctx, envelope, now)
		if pushErr != nil {
			r.logger.ErrorContext(ctx, "lost delayed envelope", "envelope_id", envelope.ID, "type", envelope.Type, "error", pushErr)
			errs = append(errs, pushErr)
		}

		errs = append(errs, err)
	}

	return published, errors.Join(errs...)
}
