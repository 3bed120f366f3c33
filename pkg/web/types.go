// Package web provides HTTP request and response types for the journey admin API.
package web

import (
	"fmt"

	"github.com/dukex/journey/pkg/models"
	"github.com/google/uuid"
)

// CreateJourneyRequest represents the request body for creating a new journey.
type CreateJourneyRequest struct {
	OrganizationID string `json:"organization_id" validate:"required"`
	Name           string `json:"name"            validate:"required,min=3"`
	Description    string `json:"description"`
	CreatedBy      string `json:"created_by"`
}

// StepRequest is one step of a draft version. ID is a key local to the
// request that connections refer to; stored steps get fresh IDs.
type StepRequest struct {
	ID        string         `json:"id"         validate:"required"`
	Type      string         `json:"type"       validate:"required"`
	Name      string         `json:"name"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// ConnectionRequest is one connection of a draft version, referencing step IDs of the same request.
type ConnectionRequest struct {
	FromStepID string `json:"from_step_id" validate:"required"`
	ToStepID   string `json:"to_step_id"   validate:"required"`
	Label      string `json:"label"`
	Position   int    `json:"position"`
}

// SaveDraftRequest represents the request body for creating or replacing a draft version.
type SaveDraftRequest struct {
	Steps       []StepRequest       `json:"steps"       validate:"required,min=1,dive"`
	Connections []ConnectionRequest `json:"connections" validate:"dive"`
}

// SaveTriggerRequest represents the request body for attaching a trigger to a journey.
type SaveTriggerRequest struct {
	Type    string         `json:"type"    validate:"required,oneof=score_threshold intent_signal segment"`
	Config  map[string]any `json:"config"`
	Enabled bool           `json:"enabled"`
}

// StartExecutionRequest represents the request body for manually enrolling a contact.
type StartExecutionRequest struct {
	ContactID string `json:"contact_id" validate:"required"`
}

// CancelExecutionRequest represents the request body for canceling an execution.
type CancelExecutionRequest struct {
	Reason string `json:"reason"`
}

// ExecutionResponse is an execution with its trace.
type ExecutionResponse struct {
	Execution      *models.JourneyExecution `json:"execution"`
	StepExecutions []*models.StepExecution  `json:"step_executions"`
	Logs           []*models.ExecutionLog   `json:"logs"`
}

func (r SaveDraftRequest) toVersion(versionID string) (*models.JourneyVersion, error) {
	version := &models.JourneyVersion{
		ID:          versionID,
		Steps:       make([]*models.JourneyStep, 0, len(r.Steps)),
		Connections: make([]*models.StepConnection, 0, len(r.Connections)),
	}

	ids := make(map[string]string, len(r.Steps))

	for _, step := range r.Steps {
		if _, ok := ids[step.ID]; ok {
			return nil, fmt.Errorf("duplicate step id %q", step.ID)
		}

		ids[step.ID] = uuid.New().String()

		version.Steps = append(version.Steps, &models.JourneyStep{
			ID:        ids[step.ID],
			Type:      models.StepType(step.Type),
			Name:      step.Name,
			Config:    step.Config,
			PositionX: step.PositionX,
			PositionY: step.PositionY,
		})
	}

	for _, connection := range r.Connections {
		from, ok := ids[connection.FromStepID]
		if !ok {
			return nil, fmt.Errorf("connection from unknown step %q", connection.FromStepID)
		}

		to, ok := ids[connection.ToStepID]
		if !ok {
			return nil, fmt.Errorf("connection to unknown step %q", connection.ToStepID)
		}

		version.Connections = append(version.Connections, &models.StepConnection{
			FromStepID: from,
			ToStepID:   to,
			Label:      connection.Label,
			Position:   connection.Position,
		})
	}

	return version, nil
}
