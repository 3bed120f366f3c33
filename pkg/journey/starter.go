package journey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/journey/pkg/delay"
	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/otelhelper"
	"github.com/dukex/journey/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// CancelReasonEnqueueFailed marks executions whose entry unit could not be enqueued.
const CancelReasonEnqueueFailed = "entry step could not be enqueued"

// StartRequest enrolls a contact into the published version of a journey.
// TriggerID is empty for manual starts.
type StartRequest struct {
	JourneyID      string
	ContactID      string
	OrganizationID string
	TriggerID      string
}

// Starter creates executions and cancels them.
type Starter struct {
	logger     *slog.Logger
	journeys   persistence.JourneyRepository
	executions persistence.ExecutionRepository
	queue      delay.Enqueuer
	now        func() time.Time
}

func NewStarter(logger *slog.Logger, store persistence.Persistence, queue delay.Enqueuer) *Starter {
	return &Starter{
		logger:     logger.With("module", "journey_starter"),
		journeys:   store.JourneyRepository(),
		executions: store.ExecutionRepository(),
		queue:      queue,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *Starter) WithClock(now func() time.Time) *Starter {
	s.now = now

	return s
}

// Start creates an active execution at the entry step of the published version
// and enqueues its first unit. A contact with an active execution of the same
// journey gets persistence.ErrActiveExecutionExists.
func (s *Starter) Start(ctx context.Context, req StartRequest) (*models.JourneyExecution, error) {
	ctx, span := otelhelper.StartSpan(ctx, "journey.execution start",
		attribute.String(otelhelper.JourneyIDKey, req.JourneyID),
		attribute.String(otelhelper.ContactIDKey, req.ContactID),
		attribute.String(otelhelper.TriggerIDKey, req.TriggerID),
	)
	defer span.End()

	execution, err := s.start(ctx, req)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))

	return execution, nil
}

func (s *Starter) start(ctx context.Context, req StartRequest) (*models.JourneyExecution, error) {
	journey, err := s.journeys.JourneyByID(ctx, req.JourneyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load journey %s: %w", req.JourneyID, err)
	}

	if req.OrganizationID != "" && journey.OrganizationID != req.OrganizationID {
		return nil, persistence.NewEntityError("Start", "journey", req.JourneyID, persistence.ErrJourneyNotFound)
	}

	if !journey.IsActive() || journey.PublishedVersionID == "" {
		return nil, fmt.Errorf("%w: %s is %s", ErrJourneyNotActive, journey.ID, journey.Status)
	}

	version, err := s.journeys.VersionByID(ctx, journey.PublishedVersionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load published version %s: %w", journey.PublishedVersionID, err)
	}

	entry := version.EntryStep()
	if entry == nil {
		return nil, fmt.Errorf("%w: version %s has no steps", ErrStepNotFound, version.ID)
	}

	_, err = s.executions.ActiveExecution(ctx, journey.OrganizationID, journey.ID, req.ContactID)
	switch {
	case err == nil:
		return nil, persistence.NewEntityError("Start", "execution", req.ContactID, persistence.ErrActiveExecutionExists)
	case !persistence.IsExecutionNotFound(err):
		return nil, fmt.Errorf("failed to check active execution: %w", err)
	}

	execution := models.NewJourneyExecution(journey, version.ID, req.ContactID, entry.ID, s.now())
	execution.TriggerID = req.TriggerID

	err = s.executions.CreateExecution(ctx, execution)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("execution_id", execution.ID, "journey_id", journey.ID, "contact_id", req.ContactID)

	s.log(ctx, execution, entry.ID, models.LogLevelInfo, "execution started", map[string]any{
		"trigger_id": req.TriggerID,
		"version_id": version.ID,
	})

	unit := events.ExecuteStep{StepUnit: events.StepUnit{
		ExecutionID:    execution.ID,
		StepID:         entry.ID,
		JourneyID:      journey.ID,
		ContactID:      execution.ContactID,
		OrganizationID: execution.OrganizationID,
		VersionID:      version.ID,
	}}

	err = s.queue.Enqueue(ctx, execution.ID, unit, 0)
	if err != nil {
		enqueueErr := fmt.Errorf("failed to enqueue entry step: %w", err)

		// Release the contact so a redelivered trigger can enroll it again.
		execution.Cancel(CancelReasonEnqueueFailed, s.now())

		saveErr := s.executions.SaveExecution(ctx, execution)
		if saveErr != nil {
			logger.ErrorContext(ctx, "failed to cancel unstarted execution", "error", saveErr)
		}

		return nil, errors.Join(enqueueErr, saveErr)
	}

	logger.InfoContext(ctx, "execution started", "entry_step_id", entry.ID, "trigger_id", req.TriggerID)

	return execution, nil
}

// Cancel transitions an execution to canceled. Canceling a terminal execution
// is a no-op that returns it unchanged. Pending units of a canceled execution
// are dropped when they arrive.
func (s *Starter) Cancel(ctx context.Context, executionID, reason string) (*models.JourneyExecution, error) {
	execution, err := s.executions.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if !execution.Cancel(reason, s.now()) {
		return execution, nil
	}

	err = s.executions.SaveExecution(ctx, execution)
	if persistence.IsExecutionNotActive(err) {
		// Completed or canceled concurrently; report the stored state.
		return s.executions.ExecutionByID(ctx, executionID)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to cancel execution %s: %w", executionID, err)
	}

	s.log(ctx, execution, execution.CurrentStepID, models.LogLevelWarn, "execution canceled", map[string]any{
		"reason": reason,
	})

	s.logger.WarnContext(ctx, "execution canceled", "execution_id", execution.ID, "reason", reason)

	return execution, nil
}

func (s *Starter) log(ctx context.Context, execution *models.JourneyExecution, stepID string, level models.LogLevel, message string, metadata map[string]any) {
	err := s.executions.LogExecution(ctx, models.NewExecutionLog(execution, stepID, level, message, metadata))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to write execution log", "execution_id", execution.ID, "error", err)
	}
}
