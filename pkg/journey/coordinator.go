package journey

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/journey/pkg/branch"
	"github.com/dukex/journey/pkg/delay"
	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/idempotency"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/otelhelper"
	"github.com/dukex/journey/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// Coordinator executes one step unit at a time and decides the next units.
type Coordinator struct {
	logger     *slog.Logger
	journeys   persistence.JourneyRepository
	executions persistence.ExecutionRepository
	guard      idempotency.Guard
	queue      delay.Enqueuer
	scheduler  *delay.Scheduler
	now        func() time.Time
}

func NewCoordinator(logger *slog.Logger, store persistence.Persistence, guard idempotency.Guard, queue delay.Enqueuer) *Coordinator {
	return &Coordinator{
		logger:     logger.With("module", "journey_coordinator"),
		journeys:   store.JourneyRepository(),
		executions: store.ExecutionRepository(),
		guard:      guard,
		queue:      queue,
		scheduler:  delay.NewScheduler(queue),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now

	return c
}

// outcome is what a step decided: its recorded result and how the execution continues.
type outcome struct {
	result   map[string]any
	next     []*models.StepConnection
	complete bool
	guardTTL time.Duration
}

// ExecuteStep runs the step of unit. Redelivered units that already ran are
// acknowledged without effect. Units of executions that are no longer active
// fail with ErrExecutionNotActive.
func (c *Coordinator) ExecuteStep(ctx context.Context, unit events.ExecuteStep) error {
	ctx, span := otelhelper.StartSpan(ctx, "journey.step execute", unitAttributes(unit.StepUnit)...)
	defer span.End()

	logger := c.logger.With(
		"execution_id", unit.ExecutionID,
		"step_id", unit.StepID,
		"journey_id", unit.JourneyID,
	)

	key := idempotency.StepKey(unit.ExecutionID, unit.StepID)

	seen, err := c.guard.Seen(ctx, key)
	if err != nil {
		logger.WarnContext(ctx, "idempotency guard unavailable, continuing", "error", err)
	} else if seen {
		logger.DebugContext(ctx, "step already executed, skipping")

		return nil
	}

	execution, err := c.activeExecution(ctx, unit.ExecutionID)
	if err != nil {
		return err
	}

	step, err := c.journeys.StepByID(ctx, unit.StepID)
	if err != nil {
		if persistence.IsStepNotFound(err) {
			return fmt.Errorf("%w: %s", ErrStepNotFound, unit.StepID)
		}

		return fmt.Errorf("failed to load step %s: %w", unit.StepID, err)
	}

	if step.VersionID != execution.VersionID {
		return fmt.Errorf("%w: %s is not part of version %s", ErrStepNotFound, step.ID, execution.VersionID)
	}

	span.SetAttributes(attribute.String(otelhelper.StepTypeKey, string(step.Type)))
	logger = logger.With("step_type", step.Type)

	stepExecution := models.NewStepExecution(execution.ID, step.ID, execution.OrganizationID, c.now())

	err = c.executions.CreateStepExecution(ctx, stepExecution)
	if err != nil {
		return fmt.Errorf("failed to record step execution: %w", err)
	}

	execution.MoveToStep(step.ID)

	err = c.save(ctx, execution)
	if err != nil {
		return c.fail(ctx, logger, execution, step, stepExecution, fmt.Errorf("failed to move execution: %w", err))
	}

	out, err := c.run(ctx, unit.StepUnit, execution, step)
	if err == nil {
		err = c.continueWith(ctx, unit.StepUnit, execution, out)
	}

	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.StepIDKey, step.ID))

		return c.fail(ctx, logger, execution, step, stepExecution, err)
	}

	// Effects and continuations are committed from here on: a redelivery must be absorbed.
	err = c.guard.MarkSeen(ctx, key, out.guardTTL)
	if err != nil {
		logger.WarnContext(ctx, "failed to mark step as executed", "error", err)
	}

	c.log(ctx, execution, step.ID, models.LogLevelInfo, "step executed", map[string]any{
		"type":   string(step.Type),
		"result": out.result,
	})

	stepExecution.Complete(out.result, c.now())

	err = c.executions.UpdateStepExecution(ctx, stepExecution)
	if err != nil {
		c.log(ctx, execution, step.ID, models.LogLevelError, "failed to record step result", map[string]any{
			"step_execution_id": stepExecution.ID,
			"error":             err.Error(),
		})

		logger.ErrorContext(ctx, "step executed but its result was not recorded",
			"step_execution_id", stepExecution.ID, "result", out.result, "error", err)

		return nil
	}

	logger.InfoContext(ctx, "step executed", "result", out.result, "execution_status", execution.Status)

	return nil
}

// run performs the effect of step and decides how the execution continues.
func (c *Coordinator) run(ctx context.Context, unit events.StepUnit, execution *models.JourneyExecution, step *models.JourneyStep) (outcome, error) {
	switch step.Type {
	case models.StepTypeAction:
		return c.runAction(ctx, unit, execution, step)
	case models.StepTypeDelay:
		return c.runDelay(ctx, unit, step)
	case models.StepTypeCondition, models.StepTypeSplit:
		return c.runBranch(ctx, execution, step)
	case models.StepTypeTrigger:
		return c.advance(ctx, step, map[string]any{"type": string(step.Type)})
	default:
		return outcome{
			result:   map[string]any{"type": string(step.Type)},
			complete: true,
			guardTTL: idempotency.DefaultTTL,
		}, nil
	}
}

func (c *Coordinator) runAction(ctx context.Context, unit events.StepUnit, execution *models.JourneyExecution, step *models.JourneyStep) (outcome, error) {
	cfg, channel, err := parseAction(step.Config)
	if err != nil {
		return outcome{}, err
	}

	send := events.SendRequested{
		OrganizationID:     execution.OrganizationID,
		ContactID:          execution.ContactID,
		TemplateID:         cfg.TemplateID,
		JourneyExecutionID: execution.ID,
		StepID:             step.ID,
		Channel:            channel,
		IdempotencyKey:     idempotency.StepKey(unit.ExecutionID, unit.StepID),
	}

	err = c.queue.Enqueue(ctx, execution.ContactID, send, 0)
	if err != nil {
		return outcome{}, fmt.Errorf("failed to enqueue send request: %w", err)
	}

	return c.advance(ctx, step, map[string]any{
		"action":   cfg.Action,
		"channel":  channel,
		"enqueued": true,
	})
}

func (c *Coordinator) runDelay(ctx context.Context, unit events.StepUnit, step *models.JourneyStep) (outcome, error) {
	wait := delay.ComputeDelay(step.Config)

	err := c.scheduler.Schedule(ctx, unit, wait)
	if err != nil {
		return outcome{}, err
	}

	// Duplicates of the delay step stay absorbed until well after the wake.
	return outcome{
		result:   map[string]any{"delayMs": wait.Milliseconds()},
		guardTTL: wait + idempotency.DefaultTTL,
	}, nil
}

func (c *Coordinator) runBranch(ctx context.Context, execution *models.JourneyExecution, step *models.JourneyStep) (outcome, error) {
	cfg := branch.ParseConfig(step.Config)
	label := branch.Evaluate(cfg, branch.Context{
		ExecutionID: execution.ID,
		ContactID:   execution.ContactID,
	})

	connections, err := c.journeys.ConnectionsFrom(ctx, step.ID)
	if err != nil {
		return outcome{}, fmt.Errorf("failed to load connections of step %s: %w", step.ID, err)
	}

	result := map[string]any{"branch": label}

	selected := branch.SelectConnection(label, connections)
	if selected == nil {
		return outcome{result: result, complete: true, guardTTL: idempotency.DefaultTTL}, nil
	}

	result["nextStepId"] = selected.ToStepID

	return outcome{
		result:   result,
		next:     []*models.StepConnection{selected},
		guardTTL: idempotency.DefaultTTL,
	}, nil
}

// advance follows every outgoing connection of step, or completes the execution when there is none.
func (c *Coordinator) advance(ctx context.Context, step *models.JourneyStep, result map[string]any) (outcome, error) {
	connections, err := c.journeys.ConnectionsFrom(ctx, step.ID)
	if err != nil {
		return outcome{}, fmt.Errorf("failed to load connections of step %s: %w", step.ID, err)
	}

	return outcome{
		result:   result,
		next:     connections,
		complete: len(connections) == 0,
		guardTTL: idempotency.DefaultTTL,
	}, nil
}

// continueWith enqueues the next units or completes the execution.
func (c *Coordinator) continueWith(ctx context.Context, unit events.StepUnit, execution *models.JourneyExecution, out outcome) error {
	for _, connection := range out.next {
		err := c.enqueueStep(ctx, unit.Next(connection.ToStepID))
		if err != nil {
			return err
		}
	}

	if out.complete {
		return c.complete(ctx, execution)
	}

	return nil
}

// ProcessDelayedStep resumes an execution after its delay step elapsed by
// following the delay step's connections. The delay step itself is not run again.
func (c *Coordinator) ProcessDelayedStep(ctx context.Context, wake events.DelayedWake) error {
	ctx, span := otelhelper.StartSpan(ctx, "journey.step wake", unitAttributes(wake.StepUnit)...)
	defer span.End()

	logger := c.logger.With("execution_id", wake.ExecutionID, "step_id", wake.StepID)

	execution, err := c.activeExecution(ctx, wake.ExecutionID)
	if err != nil {
		logger.DebugContext(ctx, "dropping wake of inactive execution", "error", err)

		return err
	}

	connections, err := c.journeys.ConnectionsFrom(ctx, wake.StepID)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to load connections of step %s: %w", wake.StepID, err)
	}

	if len(connections) == 0 {
		err = c.complete(ctx, execution)
		if err != nil {
			otelhelper.SetError(span, err)

			return err
		}

		c.log(ctx, execution, wake.StepID, models.LogLevelInfo, "execution completed after delay", nil)

		return nil
	}

	for _, connection := range connections {
		err := c.enqueueStep(ctx, wake.Next(connection.ToStepID))
		if err != nil {
			otelhelper.SetError(span, err)

			return err
		}
	}

	c.log(ctx, execution, wake.StepID, models.LogLevelInfo, "resumed after delay", map[string]any{
		"delayMs": wake.DelayMs,
	})

	logger.InfoContext(ctx, "resumed after delay", "next_steps", len(connections))

	return nil
}

func (c *Coordinator) activeExecution(ctx context.Context, executionID string) (*models.JourneyExecution, error) {
	execution, err := c.executions.ExecutionByID(ctx, executionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return nil, fmt.Errorf("%w: %s not found", ErrExecutionNotActive, executionID)
		}

		return nil, fmt.Errorf("failed to load execution %s: %w", executionID, err)
	}

	if !execution.IsActive() {
		return nil, fmt.Errorf("%w: %s is %s", ErrExecutionNotActive, executionID, execution.Status)
	}

	return execution, nil
}

func (c *Coordinator) enqueueStep(ctx context.Context, unit events.StepUnit) error {
	err := c.queue.Enqueue(ctx, unit.ExecutionID, events.ExecuteStep{StepUnit: unit}, 0)
	if err != nil {
		return fmt.Errorf("failed to enqueue step %s: %w", unit.StepID, err)
	}

	return nil
}

func (c *Coordinator) complete(ctx context.Context, execution *models.JourneyExecution) error {
	if !execution.Complete(c.now()) {
		return nil
	}

	err := c.save(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to complete execution %s: %w", execution.ID, err)
	}

	return nil
}

// save writes execution unless it was canceled or completed since it was loaded.
func (c *Coordinator) save(ctx context.Context, execution *models.JourneyExecution) error {
	err := c.executions.SaveExecution(ctx, execution)
	if persistence.IsExecutionNotActive(err) {
		return fmt.Errorf("%w: %s changed concurrently", ErrExecutionNotActive, execution.ID)
	}

	return err
}

// fail records err against the step execution and returns it so the transport retries.
func (c *Coordinator) fail(ctx context.Context, logger *slog.Logger, execution *models.JourneyExecution, step *models.JourneyStep, stepExecution *models.StepExecution, err error) error {
	stepExecution.Fail(err, c.now())

	updateErr := c.executions.UpdateStepExecution(ctx, stepExecution)
	if updateErr != nil {
		logger.ErrorContext(ctx, "failed to record step failure", "error", updateErr)
	}

	level, slogLevel := models.LogLevelError, slog.LevelError
	if IsPermanent(err) {
		level, slogLevel = models.LogLevelWarn, slog.LevelWarn
	}

	c.log(ctx, execution, step.ID, level, "step failed", map[string]any{
		"type":  string(step.Type),
		"error": err.Error(),
	})

	logger.Log(ctx, slogLevel, "step failed", "error", err)

	return fmt.Errorf("step %s of execution %s failed: %w", step.ID, execution.ID, err)
}

func (c *Coordinator) log(ctx context.Context, execution *models.JourneyExecution, stepID string, level models.LogLevel, message string, metadata map[string]any) {
	err := c.executions.LogExecution(ctx, models.NewExecutionLog(execution, stepID, level, message, metadata))
	if err != nil {
		c.logger.WarnContext(ctx, "failed to write execution log", "execution_id", execution.ID, "error", err)
	}
}

func unitAttributes(unit events.StepUnit) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(otelhelper.ExecutionIDKey, unit.ExecutionID),
		attribute.String(otelhelper.StepIDKey, unit.StepID),
		attribute.String(otelhelper.JourneyIDKey, unit.JourneyID),
		attribute.String(otelhelper.OrganizationIDKey, unit.OrganizationID),
		attribute.String(otelhelper.ContactIDKey, unit.ContactID),
	}
}
