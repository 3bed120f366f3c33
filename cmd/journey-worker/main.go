package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/journey/pkg/cmd"
	"github.com/dukex/journey/pkg/delayqueue"
	"github.com/dukex/journey/pkg/journey"
	"github.com/dukex/journey/pkg/log"
	"github.com/dukex/journey/pkg/otelhelper"
	"github.com/dukex/journey/pkg/queue"
	"github.com/dukex/journey/pkg/reaper"
	"github.com/dukex/journey/pkg/triggers"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	schedules := DefaultSchedules()

	cmd := &cli.Command{
		Name:                  "journey-worker",
		EnableShellCompletion: true,
		Usage:                 "Execute journey steps, evaluate triggers and run scheduled maintenance",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (postgres://, memory://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the delay queue and idempotency guard (in-memory when empty)",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "stale-after",
				Usage:   "Age after which a running execution is canceled as stale",
				Value:   reaper.DefaultThreshold,
				Sources: cli.EnvVars("STALE_AFTER"),
			},
			&cli.StringFlag{
				Name:    "reap-schedule",
				Usage:   "Cron schedule of the stale execution cleanup (empty disables it)",
				Value:   schedules.Reap,
				Sources: cli.EnvVars("REAP_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "segment-schedule",
				Usage:   "Cron schedule of the segment trigger sweep (empty disables it)",
				Value:   schedules.Segment,
				Sources: cli.EnvVars("SEGMENT_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "relay-schedule",
				Usage:   "Cron schedule of the delay queue relay",
				Value:   schedules.Relay,
				Sources: cli.EnvVars("RELAY_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("journey-worker").With("workerId", workerID)

			logger.InfoContext(ctx, "Initializing Journey Worker")

			if command.Bool("otel-enabled") {
				shutdown, err := otelhelper.Setup(ctx, "journey-worker")
				if err != nil {
					return err
				}

				defer func() {
					err := shutdown(context.WithoutCancel(ctx))
					if err != nil {
						logger.ErrorContext(ctx, "Failed to flush traces", "error", err)
					}
				}()
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(logger, command.String("event-bus"), command.String("kafka-brokers"))
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			redisClient, err := cmd.NewRedisClient(ctx, command.String("redis-url"))
			if err != nil {
				return err
			}

			if redisClient != nil {
				defer func() {
					err := redisClient.Close()
					if err != nil {
						logger.ErrorContext(ctx, "Failed to close redis client", "error", err)
					}
				}()
			}

			delays := cmd.NewDelayQueue(logger, redisClient)
			producer := queue.NewProducer(eventBus, delays)
			starter := journey.NewStarter(logger, persistence, producer)

			worker := NewWorkerManager(
				workerID,
				logger,
				eventBus,
				journey.NewCoordinator(logger, persistence, cmd.NewGuard(logger, redisClient), producer),
				triggers.NewEvaluator(logger, persistence, starter, persistence),
				reaper.New(logger, persistence.ExecutionRepository(), command.Duration("stale-after")),
				delayqueue.NewRelay(logger, delays, eventBus),
				Schedules{
					Reap:    command.String("reap-schedule"),
					Segment: command.String("segment-schedule"),
					Relay:   command.String("relay-schedule"),
				},
			)

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			err = worker.Run(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start journey worker", "error", err)

				return err
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
