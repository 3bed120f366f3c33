// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrJourneyNotFound indicates a journey was not found by the given identifier.
	ErrJourneyNotFound = errors.New("journey not found")

	// ErrVersionNotFound indicates a journey version was not found.
	ErrVersionNotFound = errors.New("journey version not found")

	// ErrVersionImmutable indicates an attempt to modify a published or superseded version.
	ErrVersionImmutable = errors.New("journey version is immutable")

	// ErrStepNotFound indicates a step was not found by the given identifier.
	ErrStepNotFound = errors.New("step not found")

	// ErrExecutionNotFound indicates an execution was not found.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionNotActive indicates a save of an execution that was canceled or completed since it was loaded.
	ErrExecutionNotActive = errors.New("execution no longer active")

	// ErrActiveExecutionExists indicates the contact already has an active execution of the journey.
	ErrActiveExecutionExists = errors.New("active execution already exists")

	// ErrStepExecutionNotFound indicates a step execution was not found.
	ErrStepExecutionNotFound = errors.New("step execution not found")
)

// EntityError wraps persistence errors with the operation and entity involved.
type EntityError struct {
	Op     string // Operation being performed (e.g., "ExecutionByID", "SaveVersion")
	Entity string // Entity kind (e.g., "execution", "version")
	ID     string // Entity identifier if applicable
	Err    error  // Underlying error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEntityError creates a new entity error with context.
func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

// IsNotFound checks if an error indicates any entity was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJourneyNotFound) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrStepNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrStepExecutionNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsExecutionNotActive checks if an error indicates an execution changed state concurrently.
func IsExecutionNotActive(err error) bool {
	return errors.Is(err, ErrExecutionNotActive)
}

// IsStepNotFound checks if an error indicates a step was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

// IsActiveExecutionExists checks if an error indicates the at-most-one-active invariant would be broken.
func IsActiveExecutionExists(err error) bool {
	return errors.Is(err, ErrActiveExecutionExists)
}
