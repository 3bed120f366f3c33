// Package gochannel provides the in-process transport for tests and single-binary development.
package gochannel

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// DefaultBuffer is the per-subscriber output buffer of a channel.
const DefaultBuffer = 1000

type Option func(*gochannel.Config)

// WithBuffer sets the per-subscriber output buffer.
func WithBuffer(size int64) Option {
	return func(c *gochannel.Config) {
		c.OutputChannelBuffer = size
	}
}

// WithBlockingPublish makes Publish wait until every subscriber acked the message.
func WithBlockingPublish() Option {
	return func(c *gochannel.Config) {
		c.BlockPublishUntilSubscriberAck = true
	}
}

// CreateChannel returns one GoChannel serving as both publisher and subscriber.
// Messages published before a topic has subscribers are dropped; the channel
// never persists messages, so a restarted process starts empty.
func CreateChannel(logger watermill.LoggerAdapter, opts ...Option) (*gochannel.GoChannel, *gochannel.GoChannel, error) {
	config := gochannel.Config{OutputChannelBuffer: DefaultBuffer}
	for _, opt := range opts {
		opt(&config)
	}

	pubSub := gochannel.NewGoChannel(config, logger)

	return pubSub, pubSub, nil
}
