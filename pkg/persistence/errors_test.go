package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/journey/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		executionErr := persistence.NewEntityError("ExecutionByID", "execution", "exec-123", persistence.ErrExecutionNotFound)
		stepErr := persistence.NewEntityError("StepByID", "step", "step-1", persistence.ErrStepNotFound)

		assert.True(t, persistence.IsExecutionNotFound(executionErr))
		assert.True(t, persistence.IsStepNotFound(stepErr))
		assert.True(t, persistence.IsNotFound(executionErr))
		assert.True(t, persistence.IsNotFound(stepErr))
		assert.False(t, persistence.IsStepNotFound(executionErr))

		assert.True(t, errors.Is(executionErr, persistence.ErrExecutionNotFound))
	})

	t.Run("entity error contains context", func(t *testing.T) {
		err := persistence.NewEntityError("SaveVersion", "version", "v-1", persistence.ErrVersionImmutable)

		assert.Contains(t, err.Error(), "SaveVersion")
		assert.Contains(t, err.Error(), "version v-1")
		assert.Contains(t, err.Error(), "journey version is immutable")
	})

	t.Run("wrapped errors are still detected", func(t *testing.T) {
		err := fmt.Errorf("failed to start: %w", persistence.ErrActiveExecutionExists)

		assert.True(t, persistence.IsActiveExecutionExists(err))
		assert.False(t, persistence.IsNotFound(err))
	})
}
