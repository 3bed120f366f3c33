// Package persistence provides the durable storage abstraction for journeys, triggers and executions.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/journey/pkg/models"
)

type Persistence interface {
	JourneyRepository() JourneyRepository
	ExecutionRepository() ExecutionRepository
	TriggerRepository() TriggerRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// JourneyRepository stores journeys and their versioned step graphs.
type JourneyRepository interface {
	SaveJourney(ctx context.Context, journey *models.Journey) error
	JourneyByID(ctx context.Context, id string) (*models.Journey, error)

	// SaveVersion stores a draft version with its steps and connections.
	// Saving over a published or superseded version fails with ErrVersionImmutable.
	SaveVersion(ctx context.Context, version *models.JourneyVersion) error
	VersionByID(ctx context.Context, id string) (*models.JourneyVersion, error)

	// PublishVersion atomically marks the version published, supersedes the
	// previously published version and activates the journey.
	PublishVersion(ctx context.Context, journeyID, versionID string, publishedAt time.Time) error

	StepByID(ctx context.Context, stepID string) (*models.JourneyStep, error)

	// ConnectionsFrom returns the outgoing connections of a step ordered by position.
	ConnectionsFrom(ctx context.Context, stepID string) ([]*models.StepConnection, error)
}

// ExecutionRepository stores executions, step executions and execution logs.
type ExecutionRepository interface {
	// CreateExecution inserts a new execution. It fails with ErrActiveExecutionExists
	// when the contact already has an active execution of the same journey.
	CreateExecution(ctx context.Context, execution *models.JourneyExecution) error
	ExecutionByID(ctx context.Context, id string) (*models.JourneyExecution, error)
	// SaveExecution persists an execution loaded while active. The write only
	// applies if the stored execution is still active, otherwise it fails with
	// ErrExecutionNotActive and the stored state is kept.
	SaveExecution(ctx context.Context, execution *models.JourneyExecution) error
	ActiveExecution(ctx context.Context, organizationID, journeyID, contactID string) (*models.JourneyExecution, error)
	StaleExecutions(ctx context.Context, olderThan time.Time) ([]*models.JourneyExecution, error)

	CreateStepExecution(ctx context.Context, stepExecution *models.StepExecution) error
	UpdateStepExecution(ctx context.Context, stepExecution *models.StepExecution) error
	StepExecutions(ctx context.Context, executionID string) ([]*models.StepExecution, error)

	LogExecution(ctx context.Context, entry *models.ExecutionLog) error
	Logs(ctx context.Context, executionID string) ([]*models.ExecutionLog, error)
}

// TriggerRepository stores enrollment triggers.
type TriggerRepository interface {
	SaveTrigger(ctx context.Context, trigger *models.JourneyTrigger) error

	// TriggersByType returns enabled triggers of the given type belonging to active journeys of the organization.
	TriggersByType(ctx context.Context, organizationID string, triggerType models.TriggerType) ([]*models.JourneyTrigger, error)

	// SegmentTriggers returns enabled segment triggers of active journeys across all organizations.
	SegmentTriggers(ctx context.Context) ([]*models.JourneyTrigger, error)
}
