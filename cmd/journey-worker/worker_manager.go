package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/journey/pkg/delayqueue"
	"github.com/dukex/journey/pkg/eventbus"
	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/journey"
	"github.com/dukex/journey/pkg/reaper"
	"github.com/dukex/journey/pkg/triggers"
	"github.com/robfig/cron/v3"
)

// Schedules are cron expressions for the periodic jobs. An empty expression disables the job.
type Schedules struct {
	Reap    string
	Segment string
	Relay   string
}

func DefaultSchedules() Schedules {
	return Schedules{
		Reap:    "@hourly",
		Segment: "@every 5m",
		Relay:   "@every 1s",
	}
}

type WorkerManager struct {
	id          string
	logger      *slog.Logger
	eventBus    eventbus.EventBus
	coordinator *journey.Coordinator
	evaluator   *triggers.Evaluator
	reaper      *reaper.Reaper
	relay       *delayqueue.Relay
	schedules   Schedules
	cron        *cron.Cron
}

func NewWorkerManager(
	id string,
	logger *slog.Logger,
	eventBus eventbus.EventBus,
	coordinator *journey.Coordinator,
	evaluator *triggers.Evaluator,
	reaper *reaper.Reaper,
	relay *delayqueue.Relay,
	schedules Schedules,
) *WorkerManager {
	return &WorkerManager{
		id:          id,
		logger:      logger.With("module", "journey-worker", "worker_id", id),
		eventBus:    eventBus,
		coordinator: coordinator,
		evaluator:   evaluator,
		reaper:      reaper,
		relay:       relay,
		schedules:   schedules,
	}
}

// Run starts the worker and blocks until ctx is done.
func (w *WorkerManager) Run(ctx context.Context) error {
	err := w.Start(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()
	w.logger.InfoContext(ctx, "Shutting down worker...")
	w.Stop()

	return nil
}

// Start registers the event handlers, subscribes and starts the scheduled jobs.
func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	handlers := map[events.EventType]eventbus.EventHandler{
		events.ExecuteStepEvent:              w.handleExecuteStep,
		events.DelayedWakeEvent:              w.handleDelayedWake,
		events.ScoreChangedEvent:             w.handleScoreChanged,
		events.IntentSignalObservedEvent:     w.handleIntentSignalObserved,
		events.SegmentMembershipChangedEvent: w.handleSegmentMembershipChanged,
	}

	for eventType, handler := range handlers {
		err := w.eventBus.Handle(eventType, handler)
		if err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	err := w.startJobs(ctx)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)
		w.Stop()

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	return nil
}

func (w *WorkerManager) Stop() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
}

func (w *WorkerManager) startJobs(ctx context.Context) error {
	w.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	jobs := []struct {
		name     string
		schedule string
		run      func(context.Context)
	}{
		{"reap", w.schedules.Reap, w.reap},
		{"segment", w.schedules.Segment, w.sweepSegments},
		{"relay", w.schedules.Relay, w.relayDue},
	}

	for _, job := range jobs {
		if job.schedule == "" {
			w.logger.InfoContext(ctx, "Scheduled job disabled", "job", job.name)

			continue
		}

		id, err := w.cron.AddFunc(job.schedule, func() { job.run(context.WithoutCancel(ctx)) })
		if err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", job.name, err)
		}

		w.logger.InfoContext(ctx, "Adding cron job", "job", job.name, "schedule", job.schedule, "id", id)
	}

	w.cron.Start()

	return nil
}

func (w *WorkerManager) reap(ctx context.Context) {
	canceled, err := w.reaper.CleanupStaleExecutions(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Stale execution cleanup failed", "error", err, "canceled", canceled)

		return
	}

	if canceled > 0 {
		w.logger.InfoContext(ctx, "Canceled stale executions", "canceled", canceled)
	}
}

func (w *WorkerManager) sweepSegments(ctx context.Context) {
	result, err := w.evaluator.EvaluateSegmentTriggers(ctx)
	w.logResult(ctx, "segment sweep", result, err)
}

func (w *WorkerManager) relayDue(ctx context.Context) {
	relayed, err := w.relay.Tick(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Delay queue relay failed", "error", err, "relayed", relayed)

		return
	}

	if relayed > 0 {
		w.logger.DebugContext(ctx, "Relayed due units", "relayed", relayed)
	}
}

func (w *WorkerManager) handleExecuteStep(ctx context.Context, event any) error {
	unit, ok := event.(*events.ExecuteStep)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecuteStep")

		return nil
	}

	logger := w.logger.With("execution_id", unit.ExecutionID, "step_id", unit.StepID)
	logger.DebugContext(ctx, "Processing execute step unit")

	return w.settle(ctx, logger, w.coordinator.ExecuteStep(ctx, *unit))
}

func (w *WorkerManager) handleDelayedWake(ctx context.Context, event any) error {
	wake, ok := event.(*events.DelayedWake)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for DelayedWake")

		return nil
	}

	logger := w.logger.With("execution_id", wake.ExecutionID, "step_id", wake.StepID)
	logger.DebugContext(ctx, "Processing delayed wake unit")

	return w.settle(ctx, logger, w.coordinator.ProcessDelayedStep(ctx, *wake))
}

// settle acks permanent failures so the transport stops redelivering them.
func (w *WorkerManager) settle(ctx context.Context, logger *slog.Logger, err error) error {
	if err == nil {
		return nil
	}

	if journey.IsPermanent(err) {
		logger.WarnContext(ctx, "Dropping unit that can never succeed", "error", err)

		return nil
	}

	logger.ErrorContext(ctx, "Unit failed, it will be redelivered", "error", err)

	return err
}

func (w *WorkerManager) handleScoreChanged(ctx context.Context, event any) error {
	changed, ok := event.(*events.ScoreChanged)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ScoreChanged")

		return nil
	}

	result, err := w.evaluator.EvaluateScoreTriggers(ctx, triggers.ScoreSignalFromScoreChanged(*changed))
	w.logResult(ctx, "score changed", result, err)

	return err
}

func (w *WorkerManager) handleIntentSignalObserved(ctx context.Context, event any) error {
	observed, ok := event.(*events.IntentSignalObserved)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for IntentSignalObserved")

		return nil
	}

	result, err := w.evaluator.EvaluateScoreTriggers(ctx, triggers.ScoreSignalFromIntent(*observed))
	w.logResult(ctx, "intent signal", result, err)

	return err
}

func (w *WorkerManager) handleSegmentMembershipChanged(ctx context.Context, event any) error {
	changed, ok := event.(*events.SegmentMembershipChanged)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for SegmentMembershipChanged")

		return nil
	}

	result, err := w.evaluator.EvaluateSegmentMembership(ctx, *changed)
	w.logResult(ctx, "segment membership", result, err)

	return err
}

func (w *WorkerManager) logResult(ctx context.Context, source string, result triggers.Result, err error) {
	if err != nil {
		w.logger.ErrorContext(ctx, "Trigger evaluation failed", "source", source, "error", err)

		return
	}

	w.logger.InfoContext(ctx, "Trigger evaluation finished",
		"source", source,
		"evaluated", result.Evaluated,
		"started", len(result.Started),
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
}
