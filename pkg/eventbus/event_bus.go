// Package eventbus carries journey units of work and domain events over an at-least-once transport.
package eventbus

import (
	"context"

	"github.com/dukex/journey/pkg/events"
)

// Event is anything with a registered type; the type selects its topic.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends events. The key orders and partitions messages, so
// units of one execution share a key.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber dispatches received events to at most one handler per type.
// Handlers must be registered before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a decoded pointer event, e.g. *events.ExecuteStep.
// Returning an error makes the transport redeliver the message.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber

	// NewMessageID returns a unique, time-ordered message identifier.
	NewMessageID() string
	Close() error
}
