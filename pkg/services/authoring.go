package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Authoring creates journeys, their draft versions and their triggers.
type Authoring struct {
	logger    *slog.Logger
	journeys  persistence.JourneyRepository
	triggers  persistence.TriggerRepository
	validator *validator.Validate
	now       func() time.Time
}

func NewAuthoring(logger *slog.Logger, persistence persistence.Persistence) *Authoring {
	return &Authoring{
		logger:    logger.With("module", "authoring"),
		journeys:  persistence.JourneyRepository(),
		triggers:  persistence.TriggerRepository(),
		validator: validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateJourney stores a new draft journey.
func (a *Authoring) CreateJourney(ctx context.Context, journey *models.Journey) (*models.Journey, error) {
	now := a.now()

	if journey.ID == "" {
		journey.ID = uuid.New().String()
	}

	journey.Status = models.JourneyStatusDraft
	journey.PublishedVersionID = ""
	journey.CreatedAt = now
	journey.UpdatedAt = now

	err := a.validator.Struct(journey)
	if err != nil {
		return nil, NewValidationError("CreateJourney", "invalid_journey", err.Error(), errors.Join(ErrInvalidRequest, err))
	}

	err = a.journeys.SaveJourney(ctx, journey)
	if err != nil {
		return nil, fmt.Errorf("failed to save journey: %w", err)
	}

	a.logger.InfoContext(ctx, "journey created", "journey_id", journey.ID, "organization_id", journey.OrganizationID)

	return journey, nil
}

// SaveDraft creates or replaces a draft version of a journey. Steps and
// connections are stamped with the version. Published versions cannot be replaced.
func (a *Authoring) SaveDraft(ctx context.Context, journeyID string, version *models.JourneyVersion) (*models.JourneyVersion, error) {
	journey, err := a.journeys.JourneyByID(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get journey: %w", err)
	}

	if journey.Status == models.JourneyStatusArchived {
		return nil, &ServiceError{Op: "SaveDraft", Code: "journey_archived", Err: ErrJourneyArchived}
	}

	if version.ID == "" {
		version.ID = uuid.New().String()
	}

	number, err := a.versionNumber(ctx, journey, version.ID)
	if err != nil {
		return nil, err
	}

	version.JourneyID = journey.ID
	version.OrganizationID = journey.OrganizationID
	version.Number = number
	version.Status = models.VersionStatusDraft
	version.PublishedAt = nil
	version.CreatedAt = a.now()

	for _, step := range version.Steps {
		if step.ID == "" {
			step.ID = uuid.New().String()
		}

		step.VersionID = version.ID
		step.OrganizationID = journey.OrganizationID
	}

	for _, connection := range version.Connections {
		if connection.ID == "" {
			connection.ID = uuid.New().String()
		}

		connection.VersionID = version.ID
	}

	err = a.validator.Struct(version)
	if err != nil {
		return nil, NewValidationError("SaveDraft", "invalid_version", err.Error(), errors.Join(ErrInvalidRequest, err))
	}

	err = a.journeys.SaveVersion(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("failed to save version: %w", err)
	}

	a.logger.InfoContext(ctx, "draft saved", "journey_id", journey.ID, "version_id", version.ID, "number", version.Number, "steps", len(version.Steps))

	return version, nil
}

// versionNumber keeps the number of a replaced draft, otherwise numbers the
// new draft after the published version.
func (a *Authoring) versionNumber(ctx context.Context, journey *models.Journey, versionID string) (int, error) {
	existing, err := a.journeys.VersionByID(ctx, versionID)

	switch {
	case err == nil:
		if existing.JourneyID != journey.ID {
			return 0, persistence.NewEntityError("SaveDraft", "version", versionID, persistence.ErrVersionNotFound)
		}

		return existing.Number, nil
	case !persistence.IsNotFound(err):
		return 0, fmt.Errorf("failed to get version: %w", err)
	}

	if journey.PublishedVersionID == "" {
		return 1, nil
	}

	published, err := a.journeys.VersionByID(ctx, journey.PublishedVersionID)
	if err != nil {
		return 0, fmt.Errorf("failed to get published version: %w", err)
	}

	return published.Number + 1, nil
}

// SaveTrigger creates or updates an enrollment trigger of a journey.
func (a *Authoring) SaveTrigger(ctx context.Context, journeyID string, trigger *models.JourneyTrigger) (*models.JourneyTrigger, error) {
	journey, err := a.journeys.JourneyByID(ctx, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get journey: %w", err)
	}

	schema, ok := triggerSchemas[trigger.Type]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTrigger, trigger.Type)
	}

	err = validateConfig(schema, trigger.Config, ErrInvalidRequest)
	if err != nil {
		return nil, err
	}

	now := a.now()

	if trigger.ID == "" {
		trigger.ID = uuid.New().String()
		trigger.CreatedAt = now
	}

	trigger.JourneyID = journey.ID
	trigger.OrganizationID = journey.OrganizationID
	trigger.UpdatedAt = now

	err = a.triggers.SaveTrigger(ctx, trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to save trigger: %w", err)
	}

	a.logger.InfoContext(ctx, "trigger saved", "journey_id", journey.ID, "trigger_id", trigger.ID, "type", trigger.Type)

	return trigger, nil
}
