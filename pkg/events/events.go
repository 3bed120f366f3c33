// Package events defines the units of work and domain events exchanged over the journey transport.
package events

import (
	"fmt"
)

type EventType string

// Topics.
const (
	StepsTopic      = "journey.steps"       // ExecuteStep and DelayedWake units of work
	DeliveryTopic   = "journey.delivery"    // Send requests for the delivery pipeline
	DomainTopic     = "journey.domain"      // Score, intent and segment events from other domains
	DeadLetterTopic = "journey.dead_letter" // Messages that exhausted their retries
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecuteStepEvent EventType = "journey.step.execute"
	DelayedWakeEvent EventType = "journey.step.delayed_wake"

	SendRequestedEvent EventType = "delivery.send.requested"

	ScoreChangedEvent             EventType = "contact.score.changed"
	IntentSignalObservedEvent     EventType = "contact.intent.observed"
	SegmentMembershipChangedEvent EventType = "segment.membership.changed"
)

// Event is any payload carried by the bus.
type Event interface {
	GetType() EventType
}

// New returns an empty pointer for eventType, ready to be decoded into.
func New(eventType EventType) (Event, error) {
	switch eventType {
	case ExecuteStepEvent:
		return &ExecuteStep{}, nil
	case DelayedWakeEvent:
		return &DelayedWake{}, nil
	case SendRequestedEvent:
		return &SendRequested{}, nil
	case ScoreChangedEvent:
		return &ScoreChanged{}, nil
	case IntentSignalObservedEvent:
		return &IntentSignalObserved{}, nil
	case SegmentMembershipChangedEvent:
		return &SegmentMembershipChanged{}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}

// TopicOf returns the topic an event type is published on.
func TopicOf(eventType EventType) string {
	switch eventType {
	case ExecuteStepEvent, DelayedWakeEvent:
		return StepsTopic
	case SendRequestedEvent:
		return DeliveryTopic
	default:
		return DomainTopic
	}
}

// StepUnit identifies one step of one execution. Every unit of work carries it.
type StepUnit struct {
	ExecutionID    string `json:"execution_id"`
	StepID         string `json:"step_id"`
	JourneyID      string `json:"journey_id"`
	ContactID      string `json:"contact_id"`
	OrganizationID string `json:"organization_id"`
	VersionID      string `json:"version_id"`
}

// Next returns the same unit pointed at another step.
func (u StepUnit) Next(stepID string) StepUnit {
	u.StepID = stepID

	return u
}

// ExecuteStep asks the coordinator to run one step.
type ExecuteStep struct {
	StepUnit
}

func (e ExecuteStep) GetType() EventType {
	return ExecuteStepEvent
}

// DelayedWake resumes an execution after a delay step elapsed.
type DelayedWake struct {
	StepUnit

	DelayMs int64 `json:"delay_ms"`
}

func (e DelayedWake) GetType() EventType {
	return DelayedWakeEvent
}

// SendRequested is handed to the delivery pipeline, which owns actual dispatch.
type SendRequested struct {
	OrganizationID     string `json:"organization_id"`
	ContactID          string `json:"contact_id"`
	TemplateID         string `json:"template_id"`
	JourneyExecutionID string `json:"journey_execution_id"`
	StepID             string `json:"step_id"`
	Channel            string `json:"channel"`
	IdempotencyKey     string `json:"idempotency_key"`
}

func (e SendRequested) GetType() EventType {
	return SendRequestedEvent
}

type ScoreChanged struct {
	OrganizationID string  `json:"organization_id"`
	ContactID      string  `json:"contact_id"`
	Score          float64 `json:"score"`
}

func (e ScoreChanged) GetType() EventType {
	return ScoreChangedEvent
}

type IntentSignalObserved struct {
	OrganizationID string  `json:"organization_id"`
	ContactID      string  `json:"contact_id"`
	Score          float64 `json:"score"`
	SignalType     string  `json:"signal_type"`
}

func (e IntentSignalObserved) GetType() EventType {
	return IntentSignalObservedEvent
}

// SegmentMembershipChanged reports a contact entering or leaving a segment.
type SegmentMembershipChanged struct {
	OrganizationID string `json:"organization_id"`
	ContactID      string `json:"contact_id"`
	SegmentID      string `json:"segment_id"`
	Entered        bool   `json:"entered"`
}

func (e SegmentMembershipChanged) GetType() EventType {
	return SegmentMembershipChangedEvent
}
