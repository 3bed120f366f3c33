package journey_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/eventbus"
	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/idempotency"
	"github.com/dukex/journey/pkg/journey"
	"github.com/dukex/journey/pkg/log"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/persistence/memory"
	"github.com/dukex/journey/pkg/testutil"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type enqueued struct {
	key   string
	event eventbus.Event
	delay time.Duration
}

// recordingQueue captures enqueued units instead of delivering them.
type recordingQueue struct {
	mu    sync.Mutex
	items []enqueued
	err   error
}

func (q *recordingQueue) Enqueue(_ context.Context, key string, event eventbus.Event, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return q.err
	}

	q.items = append(q.items, enqueued{key: key, event: event, delay: delay})

	return nil
}

// drain returns and forgets everything enqueued so far.
func (q *recordingQueue) drain() []enqueued {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil

	return items
}

func (q *recordingQueue) executeSteps(items []enqueued) []events.ExecuteStep {
	var units []events.ExecuteStep

	for _, item := range items {
		if unit, ok := item.event.(events.ExecuteStep); ok {
			units = append(units, unit)
		}
	}

	return units
}

func (q *recordingQueue) sends(items []enqueued) []events.SendRequested {
	var sends []events.SendRequested

	for _, item := range items {
		if send, ok := item.event.(events.SendRequested); ok {
			sends = append(sends, send)
		}
	}

	return sends
}

// recordingGuard wraps a memory guard and records the TTL of every mark.
type recordingGuard struct {
	*idempotency.MemoryGuard

	mu   sync.Mutex
	ttls map[string]time.Duration
}

func newRecordingGuard() *recordingGuard {
	return &recordingGuard{MemoryGuard: idempotency.NewMemoryGuard(), ttls: make(map[string]time.Duration)}
}

func (g *recordingGuard) MarkSeen(ctx context.Context, key string, ttl time.Duration) error {
	g.mu.Lock()
	g.ttls[key] = ttl
	g.mu.Unlock()

	return g.MemoryGuard.MarkSeen(ctx, key, ttl)
}

type harness struct {
	store       *memory.Persistence
	queue       *recordingQueue
	guard       *recordingGuard
	coordinator *journey.Coordinator
	starter     *journey.Starter
	clock       func() time.Time
}

func newHarness() *harness {
	store := memory.NewPersistence()
	queue := &recordingQueue{}
	guard := newRecordingGuard()

	// Every reading advances one second so step executions keep their order.
	var (
		mu   sync.Mutex
		tick = now
	)

	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		tick = tick.Add(time.Second)

		return tick
	}

	return &harness{
		store:       store,
		queue:       queue,
		guard:       guard,
		coordinator: journey.NewCoordinator(log.Discard(), store, guard, queue).WithClock(clock),
		starter:     journey.NewStarter(log.Discard(), store, queue).WithClock(clock),
		clock:       clock,
	}
}

// hookedExecutions runs onLoad once, right after the first execution read,
// and fails step execution updates with updateErr when set.
type hookedExecutions struct {
	persistence.ExecutionRepository

	once      sync.Once
	onLoad    func()
	updateErr error
}

func (r *hookedExecutions) ExecutionByID(ctx context.Context, id string) (*models.JourneyExecution, error) {
	execution, err := r.ExecutionRepository.ExecutionByID(ctx, id)
	if r.onLoad != nil {
		r.once.Do(r.onLoad)
	}

	return execution, err
}

func (r *hookedExecutions) UpdateStepExecution(ctx context.Context, stepExecution *models.StepExecution) error {
	if r.updateErr != nil {
		return r.updateErr
	}

	return r.ExecutionRepository.UpdateStepExecution(ctx, stepExecution)
}

type hookedStore struct {
	*memory.Persistence

	executions *hookedExecutions
}

func (s *hookedStore) ExecutionRepository() persistence.ExecutionRepository {
	return s.executions
}

// hook replaces the coordinator with one reading executions through hooked.
func (h *harness) hook(hooked *hookedExecutions) {
	hooked.ExecutionRepository = h.store.ExecutionRepository()
	store := &hookedStore{Persistence: h.store, executions: hooked}

	h.coordinator = journey.NewCoordinator(log.Discard(), store, h.guard, h.queue).WithClock(h.clock)
}

// cancelAfterLoad makes the coordinator's first execution read be
// immediately followed by an operator cancel.
func (h *harness) cancelAfterLoad(t *testing.T, executionID string) {
	t.Helper()

	h.hook(&hookedExecutions{onLoad: func() {
		_, err := h.starter.Cancel(t.Context(), executionID, "unsubscribed")
		if err != nil {
			t.Errorf("cancel: %v", err)
		}
	}})
}

// publish stores an active journey and returns it with its published version.
func (h *harness) publish(t *testing.T, steps []*models.JourneyStep, connections []*models.StepConnection) (*models.Journey, *models.JourneyVersion) {
	t.Helper()

	return testutil.PublishJourney(t.Context(), t, h.store, steps, connections)
}

// unitAt starts an execution positioned at step and returns the unit that would execute it.
func (h *harness) unitAt(t *testing.T, j *models.Journey, v *models.JourneyVersion, step *models.JourneyStep) events.ExecuteStep {
	t.Helper()

	execution := testutil.StartExecution(t.Context(), t, h.store, j, v, "contact-1", step.ID, now)

	return events.ExecuteStep{StepUnit: events.StepUnit{
		ExecutionID:    execution.ID,
		StepID:         step.ID,
		JourneyID:      j.ID,
		ContactID:      execution.ContactID,
		OrganizationID: execution.OrganizationID,
		VersionID:      v.ID,
	}}
}

func (h *harness) execution(t *testing.T, id string) *models.JourneyExecution {
	t.Helper()

	execution, err := h.store.ExecutionRepository().ExecutionByID(t.Context(), id)
	if err != nil {
		t.Fatalf("load execution: %v", err)
	}

	return execution
}

func (h *harness) stepExecutions(t *testing.T, executionID string) []*models.StepExecution {
	t.Helper()

	stepExecutions, err := h.store.ExecutionRepository().StepExecutions(t.Context(), executionID)
	if err != nil {
		t.Fatalf("load step executions: %v", err)
	}

	return stepExecutions
}

func (h *harness) logs(t *testing.T, executionID string) []*models.ExecutionLog {
	t.Helper()

	logs, err := h.store.ExecutionRepository().Logs(t.Context(), executionID)
	if err != nil {
		t.Fatalf("load logs: %v", err)
	}

	return logs
}
