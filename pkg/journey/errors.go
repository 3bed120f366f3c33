// Package journey drives executions through journey version graphs. Every
// unit of work is handled statelessly from the durable store.
package journey

import (
	"errors"

	"github.com/dukex/journey/pkg/persistence"
)

var (
	ErrExecutionNotActive = errors.New("execution not active")
	ErrStepNotFound       = errors.New("step not found")
	ErrJourneyNotActive   = errors.New("journey not active")
	ErrUnknownAction      = errors.New("unknown action")
)

// IsPermanent reports whether redelivering the unit of work cannot succeed.
// These are expected races: the caller logs and drops the message.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrExecutionNotActive) ||
		errors.Is(err, ErrStepNotFound) ||
		errors.Is(err, persistence.ErrExecutionNotFound) ||
		errors.Is(err, persistence.ErrExecutionNotActive)
}
