package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/journey/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, ParseBrokers(" kafka-1:9092, ,kafka-2:9092 "))
	assert.Empty(t, ParseBrokers(""))
}

func TestCreateChannel_RequiresBrokers(t *testing.T) {
	_, _, err := CreateChannel(watermill.NopLogger{}, nil, "journey-worker")
	assert.ErrorIs(t, err, ErrNoBrokers)
}

func TestPartitionKey(t *testing.T) {
	msg := message.NewMessage("msg-1", nil)

	key, err := partitionKey(events.StepsTopic, msg)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", key)

	msg.Metadata.Set(events.EventMetadataKey, "exec-1")

	key, err = partitionKey(events.StepsTopic, msg)
	require.NoError(t, err)
	assert.Equal(t, "exec-1", key)
}
