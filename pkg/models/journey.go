// Package models defines the core domain models for journey execution.
package models

import "time"

// JourneyStatus represents the lifecycle state of a journey.
type JourneyStatus string

const (
	JourneyStatusDraft    JourneyStatus = "draft"
	JourneyStatusActive   JourneyStatus = "active"
	JourneyStatusPaused   JourneyStatus = "paused"
	JourneyStatusArchived JourneyStatus = "archived"
)

// VersionStatus represents the state of a journey version.
type VersionStatus string

const (
	VersionStatusDraft      VersionStatus = "draft"      // Editable, not executable
	VersionStatusPublished  VersionStatus = "published"  // Current executable graph
	VersionStatusSuperseded VersionStatus = "superseded" // Historical, still referenced by in-flight executions
)

// Journey is a named workflow definition container.
type Journey struct {
	ID                 string        `json:"id"                             validate:"required"`
	OrganizationID     string        `json:"organization_id"                validate:"required"`
	Name               string        `json:"name"                           validate:"required,min=1"`
	Description        string        `json:"description"`
	Status             JourneyStatus `json:"status"                         validate:"required,oneof=draft active paused archived"`
	CreatedBy          string        `json:"created_by"`
	PublishedVersionID string        `json:"published_version_id,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// IsActive reports whether the journey accepts new enrollments.
func (j *Journey) IsActive() bool {
	return j.Status == JourneyStatusActive
}

// JourneyVersion is a snapshot of a journey's step graph. Once published it never changes.
type JourneyVersion struct {
	ID             string            `json:"id"              validate:"required"`
	JourneyID      string            `json:"journey_id"      validate:"required"`
	OrganizationID string            `json:"organization_id" validate:"required"`
	Number         int               `json:"number"`
	Status         VersionStatus     `json:"status"`
	Steps          []*JourneyStep    `json:"steps"           validate:"dive"`
	Connections    []*StepConnection `json:"connections"     validate:"dive"`
	CreatedAt      time.Time         `json:"created_at"`
	PublishedAt    *time.Time        `json:"published_at,omitempty"`
}

// IsImmutable reports whether the version graph has been frozen by publishing.
func (v *JourneyVersion) IsImmutable() bool {
	return v.Status == VersionStatusPublished || v.Status == VersionStatusSuperseded
}

// Step returns the step with the given ID, or nil.
func (v *JourneyVersion) Step(stepID string) *JourneyStep {
	for _, step := range v.Steps {
		if step.ID == stepID {
			return step
		}
	}

	return nil
}

// EntryStep returns the step a new execution starts at: the first trigger step,
// otherwise the first step without incoming connections, otherwise the first step.
func (v *JourneyVersion) EntryStep() *JourneyStep {
	if len(v.Steps) == 0 {
		return nil
	}

	for _, step := range v.Steps {
		if step.Type == StepTypeTrigger {
			return step
		}
	}

	incoming := make(map[string]bool, len(v.Connections))
	for _, conn := range v.Connections {
		incoming[conn.ToStepID] = true
	}

	for _, step := range v.Steps {
		if !incoming[step.ID] {
			return step
		}
	}

	return v.Steps[0]
}
