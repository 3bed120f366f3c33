// Package delayqueue provides transport-level delayed delivery: envelopes are
// parked until due and then relayed to the event bus.
package delayqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/journey/pkg/eventbus"
	"github.com/dukex/journey/pkg/events"
	"github.com/google/uuid"
)

// Envelope is a serialized event waiting for its due time.
type Envelope struct {
	ID      string           `json:"id"`
	Key     string           `json:"key"`
	Type    events.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

func NewEnvelope(key string, event eventbus.Event) (Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s: %w", event.GetType(), err)
	}

	return Envelope{
		ID:      uuid.New().String(),
		Key:     key,
		Type:    event.GetType(),
		Payload: payload,
	}, nil
}

// Decode returns the typed event carried by the envelope.
func (e Envelope) Decode() (eventbus.Event, error) {
	event, err := events.New(e.Type)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(e.Payload, event)
	if err != nil {
		return nil, fmt.Errorf("failed to decode envelope %s: %w", e.ID, err)
	}

	return event, nil
}

type DelayQueue interface {
	// Push parks envelope until dueAt.
	Push(ctx context.Context, envelope Envelope, dueAt time.Time) error

	// PopDue atomically removes and returns up to limit envelopes due at or
	// before now, earliest first. A limit of zero or less means the
	// implementation's largest batch.
	PopDue(ctx context.Context, now time.Time, limit int) ([]Envelope, error)
}
