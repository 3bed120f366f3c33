package cmd_test

import (
	"testing"

	"github.com/dukex/journey/pkg/cmd"
	"github.com/dukex/journey/pkg/delayqueue"
	"github.com/dukex/journey/pkg/idempotency"
	"github.com/dukex/journey/pkg/log"
	"github.com/dukex/journey/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	t.Parallel()

	store, err := cmd.NewPersistence(t.Context(), log.Discard(), "memory://")
	require.NoError(t, err)
	assert.IsType(t, &memory.Persistence{}, store)
	assert.NoError(t, store.HealthCheck(t.Context()))

	tests := []struct {
		name string
		url  string
	}{
		{"no scheme", "localhost:5432"},
		{"unsupported scheme", "mysql://localhost/journey"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := cmd.NewPersistence(t.Context(), log.Discard(), tt.url)
			assert.Error(t, err)
		})
	}
}

func TestNewEventBus(t *testing.T) {
	t.Parallel()

	bus, err := cmd.NewEventBus(log.Discard(), "gochannel", "")
	require.NoError(t, err)
	assert.NotEmpty(t, bus.NewMessageID())
	assert.NoError(t, bus.Close())

	_, err = cmd.NewEventBus(log.Discard(), "rabbitmq", "")
	assert.ErrorContains(t, err, "unsupported event bus provider")

	_, err = cmd.NewEventBus(log.Discard(), "kafka", " , ")
	assert.Error(t, err)
}

func TestRedisFallbacks(t *testing.T) {
	t.Parallel()

	client, err := cmd.NewRedisClient(t.Context(), "")
	require.NoError(t, err)
	assert.Nil(t, client)

	assert.IsType(t, &delayqueue.MemoryDelayQueue{}, cmd.NewDelayQueue(log.Discard(), client))
	assert.IsType(t, &idempotency.MemoryGuard{}, cmd.NewGuard(log.Discard(), client))

	_, err = cmd.NewRedisClient(t.Context(), "not a url")
	assert.ErrorContains(t, err, "invalid redis url")
}
