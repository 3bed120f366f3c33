// Package queue is the producer side of the journey transport: immediate units
// go straight to the bus, delayed ones are parked in the delay queue.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/journey/pkg/delayqueue"
	"github.com/dukex/journey/pkg/eventbus"
)

type Producer struct {
	publisher eventbus.EventPublisher
	delays    delayqueue.DelayQueue
	now       func() time.Time
}

func NewProducer(publisher eventbus.EventPublisher, delays delayqueue.DelayQueue) *Producer {
	return &Producer{
		publisher: publisher,
		delays:    delays,
		now:       time.Now,
	}
}

// WithClock overrides the time source used to compute due times.
func (p *Producer) WithClock(now func() time.Time) *Producer {
	p.now = now

	return p
}

// Enqueue delivers event after delay. A non-positive delay publishes immediately.
func (p *Producer) Enqueue(ctx context.Context, key string, event eventbus.Event, delay time.Duration) error {
	if delay <= 0 {
		return p.publisher.Publish(ctx, key, event)
	}

	envelope, err := delayqueue.NewEnvelope(key, event)
	if err != nil {
		return err
	}

	err = p.delays.Push(ctx, envelope, p.now().Add(delay))
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", event.GetType(), err)
	}

	return nil
}
