package models

import "time"

// TriggerType identifies the domain event a trigger reacts to.
type TriggerType string

const (
	TriggerTypeScoreThreshold TriggerType = "score_threshold"
	TriggerTypeIntentSignal   TriggerType = "intent_signal"
	TriggerTypeSegment        TriggerType = "segment"
)

// JourneyTrigger is an enrollment condition owned by a journey.
type JourneyTrigger struct {
	ID             string         `json:"id"              validate:"required"`
	JourneyID      string         `json:"journey_id"      validate:"required"`
	OrganizationID string         `json:"organization_id" validate:"required"`
	Type           TriggerType    `json:"type"            validate:"required,oneof=score_threshold intent_signal segment"`
	Config         map[string]any `json:"config"`
	Enabled        bool           `json:"enabled"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
