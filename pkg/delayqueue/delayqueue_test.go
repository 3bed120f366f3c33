package delayqueue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/journey/pkg/delayqueue"
	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/log"
	"github.com/dukex/journey/pkg/mocks"
	"github.com/dukex/journey/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func wake(stepID string) events.DelayedWake {
	return events.DelayedWake{
		StepUnit: events.StepUnit{ExecutionID: "exec-1", StepID: stepID, OrganizationID: "org-1"},
		DelayMs:  3600000,
	}
}

func envelope(t *testing.T, stepID string) delayqueue.Envelope {
	t.Helper()

	env, err := delayqueue.NewEnvelope("exec-1", wake(stepID))
	require.NoError(t, err)

	return env
}

func testQueue(t *testing.T, queue delayqueue.DelayQueue) {
	ctx := t.Context()

	require.NoError(t, queue.Push(ctx, envelope(t, "late"), base.Add(2*time.Hour)))
	require.NoError(t, queue.Push(ctx, envelope(t, "soon"), base.Add(time.Hour)))

	due, err := queue.PopDue(ctx, base.Add(30*time.Minute), 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = queue.PopDue(ctx, base.Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)

	event, err := due[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, wake("soon"), *event.(*events.DelayedWake))
	assert.Equal(t, "exec-1", due[0].Key)

	due, err = queue.PopDue(ctx, base.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, due, "popped envelopes must not be returned twice")

	due, err = queue.PopDue(ctx, base.Add(3*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, events.DelayedWakeEvent, due[0].Type)

	require.NoError(t, queue.Push(ctx, envelope(t, "third"), base.Add(3*time.Minute)))
	require.NoError(t, queue.Push(ctx, envelope(t, "first"), base.Add(time.Minute)))
	require.NoError(t, queue.Push(ctx, envelope(t, "second"), base.Add(2*time.Minute)))

	due, err = queue.PopDue(ctx, base.Add(time.Hour), 2)
	require.NoError(t, err)
	require.Len(t, due, 2, "limit bounds one pop")

	for i, stepID := range []string{"first", "second"} {
		event, err := due[i].Decode()
		require.NoError(t, err)
		assert.Equal(t, stepID, event.(*events.DelayedWake).StepID)
	}

	due, err = queue.PopDue(ctx, base.Add(time.Hour), 2)
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestMemoryDelayQueue(t *testing.T) {
	testQueue(t, delayqueue.NewMemoryDelayQueue())
}

func TestRedisDelayQueue(t *testing.T) {
	client := testutil.RedisClient(t)

	testQueue(t, delayqueue.NewRedisDelayQueue(log.Discard(), client, "test"))
}

func TestMemoryDelayQueue_Pending(t *testing.T) {
	queue := delayqueue.NewMemoryDelayQueue()
	ctx := t.Context()

	require.NoError(t, queue.Push(ctx, envelope(t, "b"), base.Add(2*time.Hour)))
	require.NoError(t, queue.Push(ctx, envelope(t, "a"), base.Add(time.Hour)))

	pending := queue.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, base.Add(time.Hour), pending[0].DueAt)
	assert.Len(t, queue.Pending(), 2, "Pending must not consume the queue")
}

func TestRelay_Tick(t *testing.T) {
	ctx := t.Context()
	queue := delayqueue.NewMemoryDelayQueue()

	require.NoError(t, queue.Push(ctx, envelope(t, "due"), base.Add(-time.Second)))
	require.NoError(t, queue.Push(ctx, envelope(t, "future"), base.Add(time.Hour)))

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "exec-1", mock.MatchedBy(func(event *events.DelayedWake) bool {
		return event.StepID == "due"
	})).Return(nil).Once()

	relay := delayqueue.NewRelay(log.Discard(), queue, bus).WithClock(func() time.Time { return base })

	published, err := relay.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	bus.AssertExpectations(t)

	pending := queue.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, base.Add(time.Hour), pending[0].DueAt)
}

func TestRelay_Tick_DrainsInBatches(t *testing.T) {
	ctx := t.Context()
	queue := delayqueue.NewMemoryDelayQueue()

	for _, stepID := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, queue.Push(ctx, envelope(t, stepID), base.Add(-time.Minute)))
	}

	bus := &mocks.MockEventBus{}
	bus.OnPublish("exec-1", events.DelayedWakeEvent).Return(nil)

	relay := delayqueue.NewRelay(log.Discard(), queue, bus).
		WithClock(func() time.Time { return base }).
		WithBatchSize(2)

	published, err := relay.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, published)
	assert.Len(t, bus.Published(), 5)
	assert.Empty(t, queue.Pending())
}

func TestRelay_Tick_RepushesOnPublishFailure(t *testing.T) {
	ctx := t.Context()
	queue := delayqueue.NewMemoryDelayQueue()

	require.NoError(t, queue.Push(ctx, envelope(t, "due"), base))

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	relay := delayqueue.NewRelay(log.Discard(), queue, bus).WithClock(func() time.Time { return base })

	published, err := relay.Tick(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, published)

	pending := queue.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, base, pending[0].DueAt)

	bus.OnPublish("exec-1", events.DelayedWakeEvent).Return(nil).Once()

	published, err = relay.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, published)
	assert.Empty(t, queue.Pending())

	attempts := bus.Published()
	require.Len(t, attempts, 2)
	assert.Equal(t, attempts[0], attempts[1])
	bus.AssertExpectations(t)
}

type failingQueue struct{}

func (failingQueue) Push(context.Context, delayqueue.Envelope, time.Time) error { return nil }

func (failingQueue) PopDue(context.Context, time.Time, int) ([]delayqueue.Envelope, error) {
	return nil, errors.New("redis unavailable")
}

func TestRelay_Tick_PopFailure(t *testing.T) {
	relay := delayqueue.NewRelay(log.Discard(), failingQueue{}, &mocks.MockEventBus{})

	_, err := relay.Tick(t.Context())
	assert.ErrorContains(t, err, "redis unavailable")
}
