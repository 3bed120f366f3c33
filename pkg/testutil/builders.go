// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const OrganizationID = "org-test"

// CreateTestStep creates a JourneyStep with default values that can be overridden.
func CreateTestStep(stepType models.StepType, overrides ...func(*models.JourneyStep)) *models.JourneyStep {
	step := &models.JourneyStep{
		ID:             uuid.New().String(),
		OrganizationID: OrganizationID,
		Type:           stepType,
		Name:           string(stepType) + " step",
		Config:         map[string]any{},
		PositionX:      100,
		PositionY:      200,
	}

	for _, override := range overrides {
		override(step)
	}

	return step
}

// WithConfig sets the step configuration.
func WithConfig(config map[string]any) func(*models.JourneyStep) {
	return func(s *models.JourneyStep) {
		s.Config = config
	}
}

// WithID sets a readable step ID.
func WithID(id string) func(*models.JourneyStep) {
	return func(s *models.JourneyStep) {
		s.ID = id
	}
}

// SendEmail configures an action step that sends the given template by email.
func SendEmail(templateID string) func(*models.JourneyStep) {
	return WithConfig(map[string]any{"action": "send_email", "templateId": templateID})
}

// Connect creates a connection from -> to.
func Connect(from, to *models.JourneyStep, label string, position int) *models.StepConnection {
	return &models.StepConnection{
		ID:         uuid.New().String(),
		FromStepID: from.ID,
		ToStepID:   to.ID,
		Label:      label,
		Position:   position,
	}
}

// Chain connects steps linearly.
func Chain(steps ...*models.JourneyStep) []*models.StepConnection {
	connections := make([]*models.StepConnection, 0, len(steps))

	for i := 1; i < len(steps); i++ {
		connections = append(connections, Connect(steps[i-1], steps[i], "", 0))
	}

	return connections
}

// PublishJourney stores an active journey whose published version holds steps and connections.
func PublishJourney(ctx context.Context, t *testing.T, p persistence.Persistence, steps []*models.JourneyStep, connections []*models.StepConnection) (*models.Journey, *models.JourneyVersion) {
	t.Helper()

	now := time.Now().UTC()
	journey := &models.Journey{
		ID:             uuid.New().String(),
		OrganizationID: OrganizationID,
		Name:           "Test Journey",
		Status:         models.JourneyStatusDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	version := &models.JourneyVersion{
		ID:             uuid.New().String(),
		JourneyID:      journey.ID,
		OrganizationID: OrganizationID,
		Number:         1,
		Status:         models.VersionStatusDraft,
		Steps:          steps,
		Connections:    connections,
		CreatedAt:      now,
	}

	for _, step := range steps {
		step.VersionID = version.ID
	}

	for _, connection := range connections {
		connection.VersionID = version.ID
	}

	repo := p.JourneyRepository()
	require.NoError(t, repo.SaveJourney(ctx, journey))
	require.NoError(t, repo.SaveVersion(ctx, version))
	require.NoError(t, repo.PublishVersion(ctx, journey.ID, version.ID, now))

	journey, err := repo.JourneyByID(ctx, journey.ID)
	require.NoError(t, err)

	version, err = repo.VersionByID(ctx, version.ID)
	require.NoError(t, err)

	return journey, version
}

// StartExecution stores an active execution of version for contactID positioned at stepID.
func StartExecution(ctx context.Context, t *testing.T, p persistence.Persistence, journey *models.Journey, version *models.JourneyVersion, contactID, stepID string, startedAt time.Time) *models.JourneyExecution {
	t.Helper()

	execution := models.NewJourneyExecution(journey, version.ID, contactID, stepID, startedAt)
	require.NoError(t, p.ExecutionRepository().CreateExecution(ctx, execution))

	return execution
}
