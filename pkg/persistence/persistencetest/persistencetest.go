// Package persistencetest holds the behavioral contract every persistence.Persistence implementation must satisfy.
package persistencetest

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty persistence for one subtest.
type Factory func(t *testing.T) (persistence.Persistence, context.Context)

// Run executes the contract against the persistence returned by factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("journey round trip", func(t *testing.T) { testJourneyRoundTrip(t, factory) })
	t.Run("version graph", func(t *testing.T) { testVersionGraph(t, factory) })
	t.Run("published version is immutable", func(t *testing.T) { testVersionImmutable(t, factory) })
	t.Run("publish supersedes previous version", func(t *testing.T) { testPublishSupersedes(t, factory) })
	t.Run("one active execution per contact", func(t *testing.T) { testOneActiveExecution(t, factory) })
	t.Run("saves only active executions", func(t *testing.T) { testSaveOnlyActive(t, factory) })
	t.Run("stale executions", func(t *testing.T) { testStaleExecutions(t, factory) })
	t.Run("step executions and logs", func(t *testing.T) { testStepExecutionsAndLogs(t, factory) })
	t.Run("triggers of active journeys", func(t *testing.T) { testTriggers(t, factory) })
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Journey builds a draft journey.
func Journey(organizationID string) *models.Journey {
	at := now()

	return &models.Journey{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		Name:           "Welcome",
		Status:         models.JourneyStatusDraft,
		CreatedBy:      "user-1",
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

// Version builds a draft version of journey with a linear graph of the given step types.
func Version(journey *models.Journey, stepTypes ...models.StepType) *models.JourneyVersion {
	version := &models.JourneyVersion{
		ID:             uuid.New().String(),
		JourneyID:      journey.ID,
		OrganizationID: journey.OrganizationID,
		Number:         1,
		Status:         models.VersionStatusDraft,
		CreatedAt:      now(),
	}

	for i, stepType := range stepTypes {
		step := &models.JourneyStep{
			ID:             uuid.New().String(),
			VersionID:      version.ID,
			OrganizationID: journey.OrganizationID,
			Type:           stepType,
			Name:           string(stepType),
			Config:         map[string]any{},
		}
		version.Steps = append(version.Steps, step)

		if i > 0 {
			version.Connections = append(version.Connections, &models.StepConnection{
				ID:         uuid.New().String(),
				VersionID:  version.ID,
				FromStepID: version.Steps[i-1].ID,
				ToStepID:   step.ID,
			})
		}
	}

	return version
}

func publishedJourney(ctx context.Context, t *testing.T, p persistence.Persistence, organizationID string) (*models.Journey, *models.JourneyVersion) {
	t.Helper()

	repo := p.JourneyRepository()
	journey := Journey(organizationID)
	version := Version(journey, models.StepTypeAction, models.StepTypeExit)

	require.NoError(t, repo.SaveJourney(ctx, journey))
	require.NoError(t, repo.SaveVersion(ctx, version))
	require.NoError(t, repo.PublishVersion(ctx, journey.ID, version.ID, now()))

	journey, err := repo.JourneyByID(ctx, journey.ID)
	require.NoError(t, err)

	return journey, version
}

func testJourneyRoundTrip(t *testing.T, factory Factory) {
	p, ctx := factory(t)
	repo := p.JourneyRepository()

	journey := Journey("org-1")
	require.NoError(t, repo.SaveJourney(ctx, journey))

	stored, err := repo.JourneyByID(ctx, journey.ID)
	require.NoError(t, err)
	assert.Equal(t, journey.Name, stored.Name)
	assert.Equal(t, models.JourneyStatusDraft, stored.Status)
	assert.WithinDuration(t, journey.CreatedAt, stored.CreatedAt, time.Millisecond)

	_, err = repo.JourneyByID(ctx, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrJourneyNotFound)
	assert.True(t, persistence.IsNotFound(err))
}

func testVersionGraph(t *testing.T, factory Factory) {
	p, ctx := factory(t)
	repo := p.JourneyRepository()

	journey := Journey("org-1")
	require.NoError(t, repo.SaveJourney(ctx, journey))

	version := Version(journey, models.StepTypeCondition, models.StepTypeAction, models.StepTypeExit)
	condition := version.Steps[0]
	condition.Config = map[string]any{"type": "lead_grade", "grades": map[string]any{"default": "yes"}}

	version.Connections = []*models.StepConnection{
		{ID: "c-no", VersionID: version.ID, FromStepID: condition.ID, ToStepID: version.Steps[2].ID, Label: "no", Position: 1},
		{ID: "c-yes", VersionID: version.ID, FromStepID: condition.ID, ToStepID: version.Steps[1].ID, Label: "yes", Position: 0},
	}

	require.NoError(t, repo.SaveVersion(ctx, version))

	stored, err := repo.VersionByID(ctx, version.ID)
	require.NoError(t, err)
	require.Len(t, stored.Steps, 3)
	assert.Equal(t, condition.ID, stored.Steps[0].ID)
	assert.Equal(t, "lead_grade", stored.Steps[0].Config["type"])

	step, err := repo.StepByID(ctx, condition.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepTypeCondition, step.Type)
	assert.Equal(t, version.ID, step.VersionID)

	connections, err := repo.ConnectionsFrom(ctx, condition.ID)
	require.NoError(t, err)
	require.Len(t, connections, 2)
	assert.Equal(t, "yes", connections[0].Label)
	assert.Equal(t, "no", connections[1].Label)

	connections, err = repo.ConnectionsFrom(ctx, version.Steps[2].ID)
	require.NoError(t, err)
	assert.Empty(t, connections)

	_, err = repo.StepByID(ctx, "missing")
	assert.True(t, persistence.IsStepNotFound(err))
}

func testVersionImmutable(t *testing.T, factory Factory) {
	p, ctx := factory(t)
	repo := p.JourneyRepository()

	_, version := publishedJourney(ctx, t, p, "org-1")

	version.Steps = version.Steps[:1]
	version.Connections = nil

	err := repo.SaveVersion(ctx, version)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrVersionImmutable)

	stored, err := repo.VersionByID(ctx, version.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Steps, 2)
	assert.Equal(t, models.VersionStatusPublished, stored.Status)
	assert.NotNil(t, stored.PublishedAt)
}

func testPublishSupersedes(t *testing.T, factory Factory) {
	p, ctx := factory(t)
	repo := p.JourneyRepository()

	journey, first := publishedJourney(ctx, t, p, "org-1")
	assert.Equal(t, models.JourneyStatusActive, journey.Status)
	assert.Equal(t, first.ID, journey.PublishedVersionID)

	second := Version(journey, models.StepTypeDelay, models.StepTypeExit)
	second.Number = 2
	require.NoError(t, repo.SaveVersion(ctx, second))
	require.NoError(t, repo.PublishVersion(ctx, journey.ID, second.ID, now()))

	stored, err := repo.VersionByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VersionStatusSuperseded, stored.Status)

	journey, err = repo.JourneyByID(ctx, journey.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, journey.PublishedVersionID)

	err = repo.PublishVersion(ctx, journey.ID, second.ID, now())
	assert.ErrorIs(t, err, persistence.ErrVersionImmutable)

	err = repo.PublishVersion(ctx, journey.ID, "missing", now())
	assert.ErrorIs(t, err, persistence.ErrVersionNotFound)
}

func testOneActiveExecution(t *testing.T, factory Factory) {
	p, ctx := factory(t)
	repo := p.ExecutionRepository()

	journey, version := publishedJourney(ctx, t, p, "org-1")

	first := models.NewJourneyExecution(journey, version.ID, "contact-1", version.Steps[0].ID, now())
	require.NoError(t, repo.CreateExecution(ctx, first))

	duplicate := models.NewJourneyExecution(journey, version.ID, "contact-1", version.Steps[0].ID, now())
	err := repo.CreateExecution(ctx, duplicate)
	require.Error(t, err)
	assert.True(t, persistence.IsActiveExecutionExists(err))

	other := models.NewJourneyExecution(journey, version.ID, "contact-2", version.Steps[0].ID, now())
	require.NoError(t, repo.CreateExecution(ctx, other))

	active, err := repo.ActiveExecution(ctx, "org-1", journey.ID, "contact-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	require.True(t, first.Complete(now()))
	require.NoError(t, repo.SaveExecution(ctx, first))

	_, err = repo.ActiveExecution(ctx, "org-1", journey.ID, "contact-1")
	assert.True(t, persistence.IsExecutionNotFound(err))

	require.NoError(t, repo.CreateExecution(ctx, duplicate))

	stored, err := repo.ExecutionByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
}

func testSaveOnlyActive(t *testing.T, factory Factory) {
	p, ctx := factory(t)
	repo := p.ExecutionRepository()
	journey, version := publishedJourney(ctx, t, p, "org-1")

	execution := models.NewJourneyExecution(journey, version.ID, "contact-1", version.Steps[0].ID, now())
	require.NoError(t, repo.CreateExecution(ctx, execution))

	canceling, err := repo.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)

	moving, err := repo.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)

	require.True(t, canceling.Cancel("unsubscribed", now()))
	require.NoError(t, repo.SaveExecution(ctx, canceling))

	moving.MoveToStep(version.Steps[1].ID)
	err = repo.SaveExecution(ctx, moving)
	require.Error(t, err)
	assert.True(t, persistence.IsExecutionNotActive(err))

	stored, err := repo.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCanceled, stored.Status)
	assert.Equal(t, version.Steps[0].ID, stored.CurrentStepID)

	missing := models.NewJourneyExecution(journey, version.ID, "contact-2", version.Steps[0].ID, now())
	assert.True(t, persistence.IsExecutionNotFound(repo.SaveExecution(ctx, missing)))
}

func testStaleExecutions(t *testing.T, factory Factory) {
	p, ctx := factory(t)
	repo := p.ExecutionRepository()

	journey, version := publishedJourney(ctx, t, p, "org-1")
	current := now()

	old := models.NewJourneyExecution(journey, version.ID, "contact-old", version.Steps[0].ID, current.Add(-8*24*time.Hour))
	recent := models.NewJourneyExecution(journey, version.ID, "contact-recent", version.Steps[0].ID, current.Add(-6*24*time.Hour))
	finished := models.NewJourneyExecution(journey, version.ID, "contact-finished", version.Steps[0].ID, current.Add(-9*24*time.Hour))
	finished.Complete(current)

	for _, execution := range []*models.JourneyExecution{old, recent, finished} {
		require.NoError(t, repo.CreateExecution(ctx, execution))
	}

	stale, err := repo.StaleExecutions(ctx, current.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
}

func testStepExecutionsAndLogs(t *testing.T, factory Factory) {
	p, ctx := factory(t)
	repo := p.ExecutionRepository()

	journey, version := publishedJourney(ctx, t, p, "org-1")
	execution := models.NewJourneyExecution(journey, version.ID, "contact-1", version.Steps[0].ID, now())
	require.NoError(t, repo.CreateExecution(ctx, execution))

	stepExecution := models.NewStepExecution(execution.ID, version.Steps[0].ID, execution.OrganizationID, now())
	require.NoError(t, repo.CreateStepExecution(ctx, stepExecution))

	stepExecution.Complete(map[string]any{"delayMs": float64(3600000)}, now())
	require.NoError(t, repo.UpdateStepExecution(ctx, stepExecution))

	stepExecutions, err := repo.StepExecutions(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, stepExecutions, 1)
	assert.Equal(t, models.StepExecutionStatusCompleted, stepExecutions[0].Status)
	assert.InDelta(t, 3600000, stepExecutions[0].Result["delayMs"], 0)

	missing := models.NewStepExecution(execution.ID, version.Steps[0].ID, execution.OrganizationID, now())
	err = repo.UpdateStepExecution(ctx, missing)
	assert.ErrorIs(t, err, persistence.ErrStepExecutionNotFound)

	entry := models.NewExecutionLog(execution, version.Steps[0].ID, models.LogLevelError, "step failed", map[string]any{"attempt": float64(1)})
	require.NoError(t, repo.LogExecution(ctx, entry))

	logs, err := repo.Logs(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogLevelError, logs[0].Level)
	assert.Equal(t, "step failed", logs[0].Message)
	assert.Equal(t, version.Steps[0].ID, logs[0].StepID)
}

func testTriggers(t *testing.T, factory Factory) {
	p, ctx := factory(t)
	repo := p.TriggerRepository()

	active, _ := publishedJourney(ctx, t, p, "org-1")

	draft := Journey("org-1")
	require.NoError(t, p.JourneyRepository().SaveJourney(ctx, draft))

	trigger := func(journey *models.Journey, triggerType models.TriggerType, enabled bool, offset time.Duration) *models.JourneyTrigger {
		at := now().Add(offset)

		return &models.JourneyTrigger{
			ID:             uuid.New().String(),
			JourneyID:      journey.ID,
			OrganizationID: journey.OrganizationID,
			Type:           triggerType,
			Config:         map[string]any{"minScore": float64(80)},
			Enabled:        enabled,
			CreatedAt:      at,
			UpdatedAt:      at,
		}
	}

	second := trigger(active, models.TriggerTypeScoreThreshold, true, time.Second)
	first := trigger(active, models.TriggerTypeScoreThreshold, true, 0)
	disabled := trigger(active, models.TriggerTypeScoreThreshold, false, 0)
	ofDraft := trigger(draft, models.TriggerTypeScoreThreshold, true, 0)
	segment := trigger(active, models.TriggerTypeSegment, true, 0)

	for _, tr := range []*models.JourneyTrigger{second, first, disabled, ofDraft, segment} {
		require.NoError(t, repo.SaveTrigger(ctx, tr))
	}

	triggers, err := repo.TriggersByType(ctx, "org-1", models.TriggerTypeScoreThreshold)
	require.NoError(t, err)
	require.Len(t, triggers, 2)
	assert.Equal(t, first.ID, triggers[0].ID)
	assert.Equal(t, second.ID, triggers[1].ID)
	assert.InDelta(t, 80, triggers[0].Config["minScore"], 0)

	triggers, err = repo.TriggersByType(ctx, "org-2", models.TriggerTypeScoreThreshold)
	require.NoError(t, err)
	assert.Empty(t, triggers)

	triggers, err = repo.SegmentTriggers(ctx)
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, segment.ID, triggers[0].ID)
}
