package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/journey/pkg/channels/gochannel"
	"github.com/dukex/journey/pkg/channels/kafka"
	"github.com/dukex/journey/pkg/eventbus"
)

// ConsumerGroup is shared by every worker so each unit is handled once per deployment.
const ConsumerGroup = "journey-worker"

// NewEventBus creates the transport named by provider. brokers is a comma
// separated list and only used by kafka.
func NewEventBus(logger *slog.Logger, provider, brokers string) (eventbus.EventBus, error) {
	var (
		pub message.Publisher
		sub message.Subscriber
		err error
	)

	wlogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err = kafka.CreateChannel(wlogger, kafka.ParseBrokers(brokers), ConsumerGroup)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}
	case "gochannel", "memory":
		pub, sub, err = gochannel.CreateChannel(wlogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create go channel pub/sub: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported event bus provider %q", provider)
	}

	return eventbus.NewWatermillEventBus(logger, pub, sub, eventbus.DefaultConfig()), nil
}
