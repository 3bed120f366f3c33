package models

import (
	"sort"
)

// StepType identifies the behavior of a journey step.
type StepType string

const (
	StepTypeAction    StepType = "action"
	StepTypeDelay     StepType = "delay"
	StepTypeCondition StepType = "condition"
	StepTypeSplit     StepType = "split"
	StepTypeTrigger   StepType = "trigger"
	StepTypeExit      StepType = "exit"
)

// IsBranching reports whether the step selects a single outgoing connection by label.
func (t StepType) IsBranching() bool {
	return t == StepTypeCondition || t == StepTypeSplit
}

// IsKnown reports whether t is one of the supported step types.
func (t StepType) IsKnown() bool {
	switch t {
	case StepTypeAction, StepTypeDelay, StepTypeCondition, StepTypeSplit, StepTypeTrigger, StepTypeExit:
		return true
	default:
		return false
	}
}

// JourneyStep is one node in a journey version graph.
type JourneyStep struct {
	ID             string         `json:"id"              validate:"required"`
	VersionID      string         `json:"version_id"      validate:"required"`
	OrganizationID string         `json:"organization_id"`
	Type           StepType       `json:"type"            validate:"required"`
	Name           string         `json:"name"`
	Config         map[string]any `json:"config"`
	PositionX      int            `json:"position_x"`
	PositionY      int            `json:"position_y"`
}

// StepConnection is a directed edge between two steps of the same version.
// Label disambiguates branches of condition and split steps.
type StepConnection struct {
	ID         string `json:"id"           validate:"required"`
	VersionID  string `json:"version_id"   validate:"required"`
	FromStepID string `json:"from_step_id" validate:"required"`
	ToStepID   string `json:"to_step_id"   validate:"required"`
	Label      string `json:"label,omitempty"`
	Position   int    `json:"position"`
}

// SortConnections orders connections by Position, then ID. The first element
// after sorting is the fallback branch of a condition step.
func SortConnections(connections []*StepConnection) {
	sort.SliceStable(connections, func(i, j int) bool {
		if connections[i].Position != connections[j].Position {
			return connections[i].Position < connections[j].Position
		}

		return connections[i].ID < connections[j].ID
	})
}
