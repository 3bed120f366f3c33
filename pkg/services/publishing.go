// Package services provides journey lifecycle operations: publishing versions
// and moving journeys between statuses.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/journey/pkg/delay"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// Publishing handles journey publishing and status transitions.
type Publishing struct {
	logger    *slog.Logger
	journeys  persistence.JourneyRepository
	validator *validator.Validate
	now       func() time.Time
}

// NewPublishing creates a new journey publishing service.
func NewPublishing(logger *slog.Logger, persistence persistence.Persistence) *Publishing {
	return &Publishing{
		logger:    logger.With("module", "publishing"),
		journeys:  persistence.JourneyRepository(),
		validator: validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Publish validates a draft version and makes it the journey's executable
// graph. The previously published version is superseded and the journey
// becomes active. In-flight executions keep running their own version.
func (p *Publishing) Publish(ctx context.Context, journeyID, versionID string) (*models.Journey, error) {
	journey, err := p.journeys.JourneyByID(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get journey: %w", err)
	}

	if journey.Status == models.JourneyStatusArchived {
		return nil, &ServiceError{Op: "Publish", Code: "journey_archived", Err: ErrJourneyArchived}
	}

	version, err := p.journeys.VersionByID(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	if version.JourneyID != journeyID {
		return nil, persistence.NewEntityError("Publish", "version", versionID, persistence.ErrVersionNotFound)
	}

	if version.IsImmutable() {
		return nil, persistence.NewEntityError("Publish", "version", versionID, persistence.ErrVersionImmutable)
	}

	err = p.ValidateVersion(version)
	if err != nil {
		return nil, fmt.Errorf("version validation failed: %w", err)
	}

	err = p.journeys.PublishVersion(ctx, journeyID, versionID, p.now())
	if err != nil {
		return nil, fmt.Errorf("failed to publish version: %w", err)
	}

	p.logger.InfoContext(ctx, "version published", "journey_id", journeyID, "version_id", versionID, "number", version.Number)

	return p.journeys.JourneyByID(ctx, journeyID)
}

// Pause stops new enrollments. Running executions continue.
func (p *Publishing) Pause(ctx context.Context, journeyID string) (*models.Journey, error) {
	return p.transition(ctx, "Pause", journeyID, models.JourneyStatusPaused, func(j *models.Journey) bool {
		return j.Status == models.JourneyStatusActive
	})
}

// Resume re-opens enrollments of a paused journey.
func (p *Publishing) Resume(ctx context.Context, journeyID string) (*models.Journey, error) {
	return p.transition(ctx, "Resume", journeyID, models.JourneyStatusActive, func(j *models.Journey) bool {
		return j.Status == models.JourneyStatusPaused && j.PublishedVersionID != ""
	})
}

// Archive retires a journey from any status. Archiving twice is a no-op.
func (p *Publishing) Archive(ctx context.Context, journeyID string) (*models.Journey, error) {
	return p.transition(ctx, "Archive", journeyID, models.JourneyStatusArchived, func(*models.Journey) bool {
		return true
	})
}

func (p *Publishing) transition(ctx context.Context, op, journeyID string, to models.JourneyStatus, allowed func(*models.Journey) bool) (*models.Journey, error) {
	journey, err := p.journeys.JourneyByID(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get journey: %w", err)
	}

	if journey.Status == to {
		return journey, nil
	}

	if !allowed(journey) {
		return nil, &ServiceError{
			Op:      op,
			Code:    "invalid_transition",
			Message: fmt.Sprintf("cannot move journey from %s to %s", journey.Status, to),
			Err:     ErrInvalidTransition,
		}
	}

	from := journey.Status
	journey.Status = to
	journey.UpdatedAt = p.now()

	err = p.journeys.SaveJourney(ctx, journey)
	if err != nil {
		return nil, fmt.Errorf("failed to save journey: %w", err)
	}

	p.logger.InfoContext(ctx, "journey status changed", "journey_id", journeyID, "from", from, "to", to)

	return journey, nil
}

// ValidateVersion ensures a version graph is ready to be published.
func (p *Publishing) ValidateVersion(version *models.JourneyVersion) error {
	err := p.validator.Struct(version)
	if err != nil {
		return NewValidationError("ValidateVersion", "invalid_version", err.Error(), errors.Join(ErrInvalidRequest, err))
	}

	if len(version.Steps) == 0 {
		return ErrStepsRequired
	}

	steps := make(map[string]bool, len(version.Steps))

	for _, step := range version.Steps {
		if step.VersionID != version.ID {
			return fmt.Errorf("%w: step %s belongs to version %s", ErrInvalidRequest, step.ID, step.VersionID)
		}

		schema, ok := stepSchemas[step.Type]
		if !ok {
			return fmt.Errorf("%w %q on step %s", ErrUnknownStepType, step.Type, step.ID)
		}

		err := validateConfig(schema, step.Config, ErrInvalidStepConfig)
		if err != nil {
			return fmt.Errorf("step %s: %w", step.ID, err)
		}

		if step.Type == models.StepTypeDelay && delay.ExceedsMax(step.Config) {
			return fmt.Errorf("step %s: %w: delay longer than %s", step.ID, ErrInvalidStepConfig, delay.MaxDelay)
		}

		steps[step.ID] = true
	}

	for _, connection := range version.Connections {
		if !steps[connection.FromStepID] || !steps[connection.ToStepID] {
			return fmt.Errorf("%w: %s references a step outside version %s", ErrInvalidConnection, connection.ID, version.ID)
		}
	}

	return nil
}
