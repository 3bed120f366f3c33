// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/journey/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest    = errors.New("invalid request")
	ErrStepsRequired     = errors.New("version must have at least one step")
	ErrUnknownStepType   = errors.New("unknown step type")
	ErrInvalidStepConfig = errors.New("invalid step config")
	ErrInvalidConnection = errors.New("invalid connection")
	ErrUnknownTrigger    = errors.New("unknown trigger type")

	// Business Logic Conflicts (409 Conflict).
	ErrInvalidTransition = errors.New("invalid journey status transition")
	ErrJourneyArchived   = errors.New("journey is archived")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrStepsRequired) ||
		errors.Is(err, ErrUnknownStepType) ||
		errors.Is(err, ErrInvalidStepConfig) ||
		errors.Is(err, ErrInvalidConnection) ||
		errors.Is(err, ErrUnknownTrigger)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrJourneyArchived) ||
		errors.Is(err, persistence.ErrVersionImmutable) ||
		errors.Is(err, persistence.ErrActiveExecutionExists)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
