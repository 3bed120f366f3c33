package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/dukex/journey/pkg/events"
)

var ErrAlreadySubscribed = errors.New("event bus already subscribed")

// Config controls redelivery of failed messages before they are dead-lettered.
type Config struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:      5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

type WatermillEventBus struct {
	logger     *slog.Logger
	publisher  message.Publisher
	subscriber message.Subscriber
	config     Config

	mu            sync.Mutex
	subscriptions map[events.EventType]EventHandler
	router        *message.Router
}

func NewWatermillEventBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber, config Config) *WatermillEventBus {
	return &WatermillEventBus{
		logger:        logger.With("module", "eventbus"),
		publisher:     pub,
		subscriber:    sub,
		config:        config,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) NewMessageID() string {
	return watermill.NewULID()
}

// Publish sends event on the topic of its type. key is used for partitioning.
func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", event.GetType(), err)
	}

	msg := message.NewMessage("msg-"+eb.NewMessageID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))
	msg.SetContext(ctx)

	err = eb.publisher.Publish(events.TopicOf(event.GetType()), msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.GetType(), err)
	}

	return nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.router != nil {
		return ErrAlreadySubscribed
	}

	eb.subscriptions[eventType] = handler

	return nil
}

// Subscribe starts one router handler per topic with registered handlers and
// returns once the router is consuming. Messages whose handler keeps failing
// are retried with exponential backoff and then moved to the dead letter topic.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.router != nil {
		return ErrAlreadySubscribed
	}

	router, err := message.NewRouter(message.RouterConfig{}, watermill.NewSlogLogger(eb.logger))
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	poisonQueue, err := middleware.PoisonQueue(eb.publisher, events.DeadLetterTopic)
	if err != nil {
		return fmt.Errorf("failed to create poison queue: %w", err)
	}

	retry := middleware.Retry{
		MaxRetries:      eb.config.MaxRetries,
		InitialInterval: eb.config.InitialInterval,
		MaxInterval:     eb.config.MaxInterval,
		Multiplier:      2,
		Logger:          watermill.NewSlogLogger(eb.logger),
	}

	router.AddMiddleware(poisonQueue, retry.Middleware, middleware.Recoverer)

	for _, topic := range eb.topics() {
		router.AddNoPublisherHandler("journey-"+topic, topic, eb.subscriber, eb.dispatch)
	}

	errs := make(chan error, 1)

	go func() {
		errs <- router.Run(ctx)
	}()

	select {
	case <-router.Running():
	case err := <-errs:
		return fmt.Errorf("router stopped before running: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}

	eb.router = router

	eb.logger.InfoContext(ctx, "event bus subscribed", "topics", eb.topics())

	return nil
}

func (eb *WatermillEventBus) topics() []string {
	seen := make(map[string]bool)

	var topics []string

	for eventType := range eb.subscriptions {
		topic := events.TopicOf(eventType)
		if !seen[topic] {
			seen[topic] = true
			topics = append(topics, topic)
		}
	}

	sort.Strings(topics)

	return topics
}

func (eb *WatermillEventBus) dispatch(msg *message.Message) error {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	eb.mu.Lock()
	handler, exists := eb.subscriptions[eventType]
	eb.mu.Unlock()

	if !exists {
		return nil
	}

	event, err := events.New(eventType)
	if err != nil {
		return err
	}

	err = json.Unmarshal(msg.Payload, event)
	if err != nil {
		return fmt.Errorf("failed to decode %s message %s: %w", eventType, msg.UUID, err)
	}

	return handler(msg.Context(), event)
}

func (eb *WatermillEventBus) Close() error {
	eb.mu.Lock()
	router := eb.router
	eb.mu.Unlock()

	if router != nil {
		err := router.Close()
		if err != nil {
			return fmt.Errorf("failed to close router: %w", err)
		}
	}

	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
