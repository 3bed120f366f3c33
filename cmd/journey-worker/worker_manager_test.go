package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/cmd"
	"github.com/dukex/journey/pkg/delayqueue"
	"github.com/dukex/journey/pkg/eventbus"
	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/idempotency"
	"github.com/dukex/journey/pkg/journey"
	"github.com/dukex/journey/pkg/log"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/persistence/memory"
	"github.com/dukex/journey/pkg/queue"
	"github.com/dukex/journey/pkg/reaper"
	"github.com/dukex/journey/pkg/testutil"
	"github.com/dukex/journey/pkg/triggers"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStarter remembers every execution the evaluator started.
type recordingStarter struct {
	*journey.Starter

	mu      sync.Mutex
	started []*models.JourneyExecution
}

func (s *recordingStarter) Start(ctx context.Context, req journey.StartRequest) (*models.JourneyExecution, error) {
	execution, err := s.Starter.Start(ctx, req)
	if err == nil {
		s.mu.Lock()
		s.started = append(s.started, execution)
		s.mu.Unlock()
	}

	return execution, err
}

func (s *recordingStarter) executions() []*models.JourneyExecution {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*models.JourneyExecution(nil), s.started...)
}

type workerFixture struct {
	store   *memory.Persistence
	bus     eventbus.EventBus
	delays  *delayqueue.MemoryDelayQueue
	starter *recordingStarter
	worker  *WorkerManager
}

func newWorkerFixture(t *testing.T, schedules Schedules, clock func() time.Time) *workerFixture {
	t.Helper()

	logger := log.Discard()
	store := memory.NewPersistence()

	bus, err := cmd.NewEventBus(logger, "gochannel", "")
	require.NoError(t, err)

	t.Cleanup(func() { _ = bus.Close() })

	delays := delayqueue.NewMemoryDelayQueue()
	producer := queue.NewProducer(bus, delays)
	starter := &recordingStarter{Starter: journey.NewStarter(logger, store, producer)}

	worker := NewWorkerManager(
		"worker-test",
		logger,
		bus,
		journey.NewCoordinator(logger, store, idempotency.NewMemoryGuard(), producer),
		triggers.NewEvaluator(logger, store, starter, store),
		reaper.New(logger, store.ExecutionRepository(), reaper.DefaultThreshold).WithClock(clock),
		delayqueue.NewRelay(logger, delays, bus).WithClock(clock),
		schedules,
	)

	return &workerFixture{store: store, bus: bus, delays: delays, starter: starter, worker: worker}
}

func (f *workerFixture) attachTrigger(t *testing.T, j *models.Journey, triggerType models.TriggerType, config map[string]any) {
	t.Helper()

	require.NoError(t, f.store.TriggerRepository().SaveTrigger(t.Context(), &models.JourneyTrigger{
		ID:             uuid.New().String(),
		JourneyID:      j.ID,
		OrganizationID: j.OrganizationID,
		Type:           triggerType,
		Config:         config,
		Enabled:        true,
		CreatedAt:      time.Now().UTC(),
	}))
}

func (f *workerFixture) execution(t *testing.T, id string) *models.JourneyExecution {
	t.Helper()

	execution, err := f.store.ExecutionRepository().ExecutionByID(t.Context(), id)
	require.NoError(t, err)

	return execution
}

func inTwoHours() time.Time {
	return time.Now().Add(2 * time.Hour)
}

func TestNewWorkerManager(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, DefaultSchedules(), time.Now)

	assert.Equal(t, "worker-test", f.worker.id)
	assert.Equal(t, f.bus, f.worker.eventBus)
	assert.Equal(t, DefaultSchedules(), f.worker.schedules)
	assert.NotNil(t, f.worker.logger)
	assert.Nil(t, f.worker.cron)
}

func TestWorkerManager_ScoreEventRunsJourneyToCompletion(t *testing.T) {
	t.Parallel()

	// The relay clock runs two hours ahead so the one hour delay is due on the first tick.
	f := newWorkerFixture(t, Schedules{Relay: "@every 1s"}, inTwoHours)

	send := testutil.CreateTestStep(models.StepTypeAction, testutil.SendEmail("welcome"))
	wait := testutil.CreateTestStep(models.StepTypeDelay, testutil.WithConfig(map[string]any{"duration": 1, "unit": "hours"}))
	exit := testutil.CreateTestStep(models.StepTypeExit)

	j, _ := testutil.PublishJourney(t.Context(), t, f.store, []*models.JourneyStep{send, wait, exit}, testutil.Chain(send, wait, exit))
	f.attachTrigger(t, j, models.TriggerTypeScoreThreshold, map[string]any{"minScore": 50})

	require.NoError(t, f.worker.Start(t.Context()))
	t.Cleanup(f.worker.Stop)

	require.NoError(t, f.bus.Publish(t.Context(), "contact-1", events.ScoreChanged{
		OrganizationID: j.OrganizationID,
		ContactID:      "contact-1",
		Score:          90,
	}))

	require.Eventually(t, func() bool { return len(f.starter.executions()) == 1 }, 10*time.Second, 50*time.Millisecond)

	started := f.starter.executions()[0]
	assert.Equal(t, "contact-1", started.ContactID)

	require.Eventually(t, func() bool {
		return f.execution(t, started.ID).Status == models.ExecutionStatusCompleted
	}, 15*time.Second, 100*time.Millisecond)

	stepExecutions, err := f.store.ExecutionRepository().StepExecutions(t.Context(), started.ID)
	require.NoError(t, err)

	ran := make([]string, 0, len(stepExecutions))
	for _, stepExecution := range stepExecutions {
		ran = append(ran, stepExecution.StepID)
	}

	assert.ElementsMatch(t, []string{send.ID, wait.ID, exit.ID}, ran)
	assert.Empty(t, f.delays.Pending())
}

func TestWorkerManager_SegmentEventEnrollsContact(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, Schedules{}, time.Now)

	step := testutil.CreateTestStep(models.StepTypeExit)
	j, _ := testutil.PublishJourney(t.Context(), t, f.store, []*models.JourneyStep{step}, nil)
	f.attachTrigger(t, j, models.TriggerTypeSegment, map[string]any{"segmentId": "vip", "on": "enter"})

	require.NoError(t, f.worker.Start(t.Context()))
	t.Cleanup(f.worker.Stop)

	require.NoError(t, f.bus.Publish(t.Context(), "contact-7", events.SegmentMembershipChanged{
		OrganizationID: j.OrganizationID,
		ContactID:      "contact-7",
		SegmentID:      "vip",
		Entered:        true,
	}))

	require.Eventually(t, func() bool { return len(f.starter.executions()) == 1 }, 10*time.Second, 50*time.Millisecond)
	assert.Equal(t, "contact-7", f.starter.executions()[0].ContactID)
}

func TestWorkerManager_Start_InvalidSchedule(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, Schedules{Reap: "every now and then"}, time.Now)

	err := f.worker.Start(t.Context())
	require.ErrorContains(t, err, "failed to schedule reap job")
}

func TestWorkerManager_HandlersIgnoreInvalidEvents(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, Schedules{}, time.Now)
	ctx := t.Context()

	assert.NoError(t, f.worker.handleExecuteStep(ctx, "invalid-event"))
	assert.NoError(t, f.worker.handleDelayedWake(ctx, events.ExecuteStep{}))
	assert.NoError(t, f.worker.handleScoreChanged(ctx, 42))
	assert.NoError(t, f.worker.handleIntentSignalObserved(ctx, nil))
	assert.NoError(t, f.worker.handleSegmentMembershipChanged(ctx, &events.ScoreChanged{}))
}

func TestWorkerManager_Settle(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, Schedules{}, time.Now)
	ctx := t.Context()
	logger := log.Discard()

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"success", nil, false},
		{"execution gone", fmt.Errorf("load: %w", persistence.ErrExecutionNotFound), false},
		{"execution finished", journey.ErrExecutionNotActive, false},
		{"step missing", journey.ErrStepNotFound, false},
		{"transient", errors.New("connection reset"), true},
		{"unknown action", journey.ErrUnknownAction, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := f.worker.settle(ctx, logger, tt.err)
			if tt.wantErr {
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	// A unit for an execution that never existed is acked, not redelivered.
	assert.NoError(t, f.worker.handleExecuteStep(ctx, &events.ExecuteStep{StepUnit: events.StepUnit{
		ExecutionID: "missing",
		StepID:      "missing",
	}}))
}

func TestWorkerManager_Reap(t *testing.T) {
	t.Parallel()

	clock := func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	f := newWorkerFixture(t, Schedules{}, clock)

	step := testutil.CreateTestStep(models.StepTypeExit)
	j, v := testutil.PublishJourney(t.Context(), t, f.store, []*models.JourneyStep{step}, nil)
	execution := testutil.StartExecution(t.Context(), t, f.store, j, v, "contact-1", step.ID, time.Now().UTC())

	f.worker.reap(t.Context())

	reaped := f.execution(t, execution.ID)
	assert.Equal(t, models.ExecutionStatusCanceled, reaped.Status)
	assert.Equal(t, reaper.CancelReason, reaped.CancelReason)
}
