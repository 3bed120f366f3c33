package models

import (
	"time"

	"github.com/google/uuid"
)

// LogLevel is the severity of an execution log entry.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ExecutionLog is an append-only, operator-facing trace entry of an execution.
type ExecutionLog struct {
	ID             string         `json:"id"`
	ExecutionID    string         `json:"execution_id"`
	OrganizationID string         `json:"organization_id"`
	StepID         string         `json:"step_id,omitempty"`
	Level          LogLevel       `json:"level"`
	Message        string         `json:"message"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func NewExecutionLog(execution *JourneyExecution, stepID string, level LogLevel, message string, metadata map[string]any) *ExecutionLog {
	return &ExecutionLog{
		ID:             uuid.New().String(),
		ExecutionID:    execution.ID,
		OrganizationID: execution.OrganizationID,
		StepID:         stepID,
		Level:          level,
		Message:        message,
		Metadata:       metadata,
		CreatedAt:      time.Now().UTC(),
	}
}
