package models

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus represents the state of one contact's run through a journey version.
type ExecutionStatus string

const (
	ExecutionStatusActive    ExecutionStatus = "active"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusCanceled  ExecutionStatus = "canceled"
)

// JourneyExecution is the mutable aggregate tracking where a contact is in a journey.
// Executions are never deleted, only transitioned to a terminal status.
type JourneyExecution struct {
	ID             string          `json:"id"`
	JourneyID      string          `json:"journey_id"`
	VersionID      string          `json:"version_id"`
	OrganizationID string          `json:"organization_id"`
	ContactID      string          `json:"contact_id"`
	TriggerID      string          `json:"trigger_id,omitempty"`
	Status         ExecutionStatus `json:"status"`
	CurrentStepID  string          `json:"current_step_id,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CanceledAt     *time.Time      `json:"canceled_at,omitempty"`
	CancelReason   string          `json:"cancel_reason,omitempty"`
}

// NewJourneyExecution creates an active execution positioned at the entry step.
func NewJourneyExecution(journey *Journey, versionID, contactID, entryStepID string, now time.Time) *JourneyExecution {
	return &JourneyExecution{
		ID:             uuid.New().String(),
		JourneyID:      journey.ID,
		VersionID:      versionID,
		OrganizationID: journey.OrganizationID,
		ContactID:      contactID,
		Status:         ExecutionStatusActive,
		CurrentStepID:  entryStepID,
		StartedAt:      now,
	}
}

func (e *JourneyExecution) IsActive() bool {
	return e.Status == ExecutionStatusActive
}

// IsTerminal reports whether the execution can no longer make progress.
func (e *JourneyExecution) IsTerminal() bool {
	return e.Status == ExecutionStatusCompleted || e.Status == ExecutionStatusCanceled
}

func (e *JourneyExecution) MoveToStep(stepID string) {
	e.CurrentStepID = stepID
}

// Complete transitions the execution to completed. It reports false when the
// execution was already terminal.
func (e *JourneyExecution) Complete(now time.Time) bool {
	if e.IsTerminal() {
		return false
	}

	e.Status = ExecutionStatusCompleted
	e.CompletedAt = &now

	return true
}

// Cancel transitions the execution to canceled. Canceling a terminal execution is a no-op.
func (e *JourneyExecution) Cancel(reason string, now time.Time) bool {
	if e.IsTerminal() {
		return false
	}

	e.Status = ExecutionStatusCanceled
	e.CanceledAt = &now
	e.CancelReason = reason

	return true
}

// StepExecutionStatus is the state of a single executed step.
type StepExecutionStatus string

const (
	StepExecutionStatusRunning   StepExecutionStatus = "running"
	StepExecutionStatusCompleted StepExecutionStatus = "completed"
	StepExecutionStatusFailed    StepExecutionStatus = "failed"
)

// StepExecution records one step actually executed within an execution.
type StepExecution struct {
	ID             string              `json:"id"`
	ExecutionID    string              `json:"execution_id"`
	StepID         string              `json:"step_id"`
	OrganizationID string              `json:"organization_id"`
	Status         StepExecutionStatus `json:"status"`
	StartedAt      time.Time           `json:"started_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
	Result         map[string]any      `json:"result,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// NewStepExecution creates a running step execution.
func NewStepExecution(executionID, stepID, organizationID string, now time.Time) *StepExecution {
	return &StepExecution{
		ID:             uuid.New().String(),
		ExecutionID:    executionID,
		StepID:         stepID,
		OrganizationID: organizationID,
		Status:         StepExecutionStatusRunning,
		StartedAt:      now,
	}
}

func (s *StepExecution) Complete(result map[string]any, now time.Time) {
	s.Status = StepExecutionStatusCompleted
	s.Result = result
	s.CompletedAt = &now
}

func (s *StepExecution) Fail(err error, now time.Time) {
	s.Status = StepExecutionStatusFailed
	s.Error = err.Error()
	s.CompletedAt = &now
}
