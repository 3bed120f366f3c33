package triggers_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/eventbus"
	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/journey"
	"github.com/dukex/journey/pkg/log"
	"github.com/dukex/journey/pkg/mocks"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence/memory"
	"github.com/dukex/journey/pkg/testutil"
	"github.com/dukex/journey/pkg/triggers"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type countingQueue struct {
	mu    sync.Mutex
	count int
}

func (q *countingQueue) Enqueue(_ context.Context, _ string, _ eventbus.Event, _ time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.count++

	return nil
}

type failingMembers struct{}

func (failingMembers) SegmentMembers(context.Context, string, string) ([]string, error) {
	return nil, errors.New("segmentation service unavailable")
}

type fixture struct {
	store     *memory.Persistence
	queue     *countingQueue
	evaluator *triggers.Evaluator
}

func newFixture() *fixture {
	store := memory.NewPersistence()
	queue := &countingQueue{}
	starter := journey.NewStarter(log.Discard(), store, queue)

	return &fixture{
		store:     store,
		queue:     queue,
		evaluator: triggers.NewEvaluator(log.Discard(), store, starter, store),
	}
}

// journeyWithTrigger publishes a one-step journey and attaches an enabled trigger to it.
func (f *fixture) journeyWithTrigger(t *testing.T, triggerType models.TriggerType, config map[string]any) (*models.Journey, *models.JourneyTrigger) {
	t.Helper()

	step := testutil.CreateTestStep(models.StepTypeExit)
	j, _ := testutil.PublishJourney(t.Context(), t, f.store, []*models.JourneyStep{step}, nil)

	trigger := &models.JourneyTrigger{
		ID:             uuid.New().String(),
		JourneyID:      j.ID,
		OrganizationID: j.OrganizationID,
		Type:           triggerType,
		Config:         config,
		Enabled:        true,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, f.store.TriggerRepository().SaveTrigger(t.Context(), trigger))

	return j, trigger
}

func (f *fixture) activeCount(t *testing.T, j *models.Journey, contactID string) int {
	t.Helper()

	_, err := f.store.ExecutionRepository().ActiveExecution(t.Context(), j.OrganizationID, j.ID, contactID)
	if err != nil {
		return 0
	}

	return 1
}

func scoreSignal(contactID string, score float64) triggers.ScoreSignal {
	return triggers.ScoreSignal{
		OrganizationID: testutil.OrganizationID,
		ContactID:      contactID,
		Score:          score,
		EventType:      events.ScoreChangedEvent,
	}
}

func TestEvaluateScoreTriggers_Fires(t *testing.T) {
	f := newFixture()
	j, trigger := f.journeyWithTrigger(t, models.TriggerTypeScoreThreshold, map[string]any{"minScore": 70})

	result, err := f.evaluator.EvaluateScoreTriggers(t.Context(), scoreSignal("contact-1", 75))
	require.NoError(t, err)

	require.Len(t, result.Started, 1)
	assert.Equal(t, j.ID, result.Started[0].JourneyID)
	assert.Equal(t, trigger.ID, result.Started[0].TriggerID)
	assert.Equal(t, "contact-1", result.Started[0].ContactID)
	assert.Equal(t, 1, f.queue.count)
}

func TestEvaluateScoreTriggers_AtMostOneActive(t *testing.T) {
	f := newFixture()
	j, _ := f.journeyWithTrigger(t, models.TriggerTypeScoreThreshold, nil)

	for _, score := range []float64{85, 90, 99} {
		_, err := f.evaluator.EvaluateScoreTriggers(t.Context(), scoreSignal("contact-1", score))
		require.NoError(t, err)
	}

	assert.Equal(t, 1, f.activeCount(t, j, "contact-1"))
	assert.Equal(t, 1, f.queue.count)

	result, err := f.evaluator.EvaluateScoreTriggers(t.Context(), scoreSignal("contact-1", 95))
	require.NoError(t, err)
	assert.Empty(t, result.Started)
	assert.Equal(t, 1, result.Skipped)
}

func TestEvaluateScoreTriggers_ConcurrentSignals(t *testing.T) {
	f := newFixture()
	j, _ := f.journeyWithTrigger(t, models.TriggerTypeScoreThreshold, nil)

	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := f.evaluator.EvaluateScoreTriggers(context.Background(), scoreSignal("contact-1", 90))
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, f.activeCount(t, j, "contact-1"))
	assert.Equal(t, 1, f.queue.count)
}

func TestEvaluateScoreTriggers_BelowThreshold(t *testing.T) {
	f := newFixture()
	f.journeyWithTrigger(t, models.TriggerTypeScoreThreshold, nil)

	result, err := f.evaluator.EvaluateScoreTriggers(t.Context(), scoreSignal("contact-1", 40))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Evaluated)
	assert.Empty(t, result.Started)
	assert.Zero(t, f.queue.count)
}

func TestEvaluateScoreTriggers_IgnoresInactiveJourneysAndOtherTypes(t *testing.T) {
	f := newFixture()

	paused, _ := f.journeyWithTrigger(t, models.TriggerTypeScoreThreshold, nil)
	paused.Status = models.JourneyStatusPaused
	require.NoError(t, f.store.JourneyRepository().SaveJourney(t.Context(), paused))

	f.journeyWithTrigger(t, models.TriggerTypeIntentSignal, nil)

	result, err := f.evaluator.EvaluateScoreTriggers(t.Context(), scoreSignal("contact-1", 99))
	require.NoError(t, err)
	assert.Zero(t, result.Evaluated)
	assert.Zero(t, f.queue.count)
}

func TestEvaluateScoreTriggers_IntentSignal(t *testing.T) {
	f := newFixture()
	demo, _ := f.journeyWithTrigger(t, models.TriggerTypeIntentSignal, map[string]any{"signalType": "demo_request"})
	pricing, _ := f.journeyWithTrigger(t, models.TriggerTypeIntentSignal, map[string]any{"signalType": "pricing_page"})

	signal := triggers.ScoreSignalFromIntent(events.IntentSignalObserved{
		OrganizationID: testutil.OrganizationID,
		ContactID:      "contact-1",
		SignalType:     "demo_request",
	})

	result, err := f.evaluator.EvaluateScoreTriggers(t.Context(), signal)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Evaluated)
	require.Len(t, result.Started, 1)
	assert.Equal(t, demo.ID, result.Started[0].JourneyID)
	assert.Zero(t, f.activeCount(t, pricing, "contact-1"))
}

func TestEvaluateSegmentMembership(t *testing.T) {
	f := newFixture()
	onEnter, _ := f.journeyWithTrigger(t, models.TriggerTypeSegment, map[string]any{"segmentId": "seg-1"})
	onExit, _ := f.journeyWithTrigger(t, models.TriggerTypeSegment, map[string]any{"segmentId": "seg-1", "on": "exit"})
	other, _ := f.journeyWithTrigger(t, models.TriggerTypeSegment, map[string]any{"segmentId": "seg-2"})

	result, err := f.evaluator.EvaluateSegmentMembership(t.Context(), events.SegmentMembershipChanged{
		OrganizationID: testutil.OrganizationID,
		ContactID:      "contact-1",
		SegmentID:      "seg-1",
		Entered:        true,
	})
	require.NoError(t, err)
	require.Len(t, result.Started, 1)
	assert.Equal(t, 1, f.activeCount(t, onEnter, "contact-1"))
	assert.Zero(t, f.activeCount(t, onExit, "contact-1"))
	assert.Zero(t, f.activeCount(t, other, "contact-1"))

	result, err = f.evaluator.EvaluateSegmentMembership(t.Context(), events.SegmentMembershipChanged{
		OrganizationID: testutil.OrganizationID,
		ContactID:      "contact-1",
		SegmentID:      "seg-1",
	})
	require.NoError(t, err)
	require.Len(t, result.Started, 1)
	assert.Equal(t, 1, f.activeCount(t, onExit, "contact-1"))
}

func TestEvaluateSegmentTriggers(t *testing.T) {
	f := newFixture()
	j, _ := f.journeyWithTrigger(t, models.TriggerTypeSegment, map[string]any{"segmentId": "seg-vip"})
	f.journeyWithTrigger(t, models.TriggerTypeSegment, map[string]any{"segmentId": "seg-vip", "on": "exit"})

	f.store.SetSegmentMembers(testutil.OrganizationID, "seg-vip", []string{"contact-1", "contact-2"})

	result, err := f.evaluator.EvaluateSegmentTriggers(t.Context())
	require.NoError(t, err)
	assert.Len(t, result.Started, 2)
	assert.Equal(t, 1, f.activeCount(t, j, "contact-1"))
	assert.Equal(t, 1, f.activeCount(t, j, "contact-2"))

	f.store.SetSegmentMembers(testutil.OrganizationID, "seg-vip", []string{"contact-1", "contact-2", "contact-3"})

	result, err = f.evaluator.EvaluateSegmentTriggers(t.Context())
	require.NoError(t, err)
	require.Len(t, result.Started, 1)
	assert.Equal(t, "contact-3", result.Started[0].ContactID)
	assert.Equal(t, 2, result.Skipped)
}

func TestEvaluateSegmentTriggers_IsolatesFailures(t *testing.T) {
	store := memory.NewPersistence()
	queue := &countingQueue{}
	evaluator := triggers.NewEvaluator(log.Discard(), store, journey.NewStarter(log.Discard(), store, queue), failingMembers{})

	f := &fixture{store: store, queue: queue, evaluator: evaluator}
	f.journeyWithTrigger(t, models.TriggerTypeSegment, map[string]any{"segmentId": "seg-a"})
	f.journeyWithTrigger(t, models.TriggerTypeSegment, map[string]any{"segmentId": "seg-b"})

	result, err := evaluator.EvaluateSegmentTriggers(t.Context())
	require.ErrorContains(t, err, "segmentation service unavailable")
	assert.Equal(t, 2, result.Failed)
}

func TestEvaluator_TriggerStoreFailure(t *testing.T) {
	t.Parallel()

	store := mocks.NewMockPersistence()
	store.Triggers.On("TriggersByType", mock.Anything, "org-1", models.TriggerTypeScoreThreshold).
		Return(nil, errors.New("connection refused"))
	store.Triggers.On("SegmentTriggers", mock.Anything).Return(nil, errors.New("connection refused"))

	queue := &countingQueue{}
	evaluator := triggers.NewEvaluator(log.Discard(), store, journey.NewStarter(log.Discard(), store, queue), failingMembers{})

	result, err := evaluator.EvaluateScoreTriggers(t.Context(), triggers.ScoreSignal{
		OrganizationID: "org-1",
		ContactID:      "contact-1",
		Score:          99,
		EventType:      events.ScoreChangedEvent,
	})
	require.ErrorContains(t, err, "failed to load score_threshold triggers")
	assert.Zero(t, result.Evaluated)

	_, err = evaluator.EvaluateSegmentTriggers(t.Context())
	require.ErrorContains(t, err, "failed to load segment triggers")

	store.Triggers.AssertExpectations(t)
	store.Executions.AssertNotCalled(t, "CreateExecution", mock.Anything, mock.Anything)
	assert.Zero(t, queue.count)
}
