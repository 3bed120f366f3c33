// Package triggers decides which journeys a contact enrolls into when domain
// events about the contact arrive.
package triggers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/journey/pkg/events"
	"github.com/dukex/journey/pkg/journey"
	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/otelhelper"
	"github.com/dukex/journey/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// Starter enrolls a contact into a journey.
type Starter interface {
	Start(ctx context.Context, req journey.StartRequest) (*models.JourneyExecution, error)
}

// SegmentMembers lists the contacts of a segment. Membership is computed by
// the segmentation service and only read here.
type SegmentMembers interface {
	SegmentMembers(ctx context.Context, organizationID, segmentID string) ([]string, error)
}

// Result summarizes one evaluation.
type Result struct {
	Evaluated int
	Started   []*models.JourneyExecution
	Skipped   int
	Failed    int
}

func (r *Result) merge(other Result) {
	r.Evaluated += other.Evaluated
	r.Started = append(r.Started, other.Started...)
	r.Skipped += other.Skipped
	r.Failed += other.Failed
}

type Evaluator struct {
	logger     *slog.Logger
	triggers   persistence.TriggerRepository
	executions persistence.ExecutionRepository
	starter    Starter
	members    SegmentMembers
}

func NewEvaluator(logger *slog.Logger, store persistence.Persistence, starter Starter, members SegmentMembers) *Evaluator {
	return &Evaluator{
		logger:     logger.With("module", "trigger_evaluator"),
		triggers:   store.TriggerRepository(),
		executions: store.ExecutionRepository(),
		starter:    starter,
		members:    members,
	}
}

// EvaluateScoreTriggers evaluates the score_threshold triggers (for score
// events) or intent_signal triggers (for intent events) of the signal's
// organization. A failure on one trigger does not stop the others.
func (e *Evaluator) EvaluateScoreTriggers(ctx context.Context, signal ScoreSignal) (Result, error) {
	triggerType := signal.TriggerType()

	ctx, span := otelhelper.StartSpan(ctx, "journey.triggers evaluate",
		attribute.String(otelhelper.OrganizationIDKey, signal.OrganizationID),
		attribute.String(otelhelper.ContactIDKey, signal.ContactID),
		attribute.String(otelhelper.TriggerTypeKey, string(triggerType)),
	)
	defer span.End()

	triggers, err := e.triggers.TriggersByType(ctx, signal.OrganizationID, triggerType)
	if err != nil {
		otelhelper.SetError(span, err)

		return Result{}, fmt.Errorf("failed to load %s triggers: %w", triggerType, err)
	}

	var (
		result Result
		errs   []error
	)

	for _, trigger := range triggers {
		result.Evaluated++

		if !ShouldFire(trigger, signal) {
			continue
		}

		errs = append(errs, e.fire(ctx, trigger, signal.ContactID, &result))
	}

	err = errors.Join(errs...)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return result, err
}

// EvaluateSegmentMembership enrolls the contact of a membership change into
// journeys whose segment trigger watches that segment and that direction.
func (e *Evaluator) EvaluateSegmentMembership(ctx context.Context, change events.SegmentMembershipChanged) (Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, "journey.triggers segment membership",
		attribute.String(otelhelper.OrganizationIDKey, change.OrganizationID),
		attribute.String(otelhelper.ContactIDKey, change.ContactID),
	)
	defer span.End()

	triggers, err := e.triggers.TriggersByType(ctx, change.OrganizationID, models.TriggerTypeSegment)
	if err != nil {
		otelhelper.SetError(span, err)

		return Result{}, fmt.Errorf("failed to load segment triggers: %w", err)
	}

	var (
		result Result
		errs   []error
	)

	for _, trigger := range triggers {
		result.Evaluated++

		var cfg SegmentConfig
		if decode(trigger.Config, &cfg) != nil || !cfg.Matches(change.SegmentID, change.Entered) {
			continue
		}

		errs = append(errs, e.fire(ctx, trigger, change.ContactID, &result))
	}

	err = errors.Join(errs...)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return result, err
}

// EvaluateSegmentTriggers sweeps every enabled segment entry trigger of active
// journeys and enrolls current segment members that are not already running
// the journey.
func (e *Evaluator) EvaluateSegmentTriggers(ctx context.Context) (Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, "journey.triggers segment sweep")
	defer span.End()

	triggers, err := e.triggers.SegmentTriggers(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return Result{}, fmt.Errorf("failed to load segment triggers: %w", err)
	}

	var (
		result Result
		errs   []error
	)

	for _, trigger := range triggers {
		var cfg SegmentConfig
		if decode(trigger.Config, &cfg) != nil || cfg.SegmentID == "" || cfg.On == MembershipExit {
			continue
		}

		partial, err := e.sweepSegment(ctx, trigger, cfg.SegmentID)
		result.merge(partial)
		errs = append(errs, err)
	}

	err = errors.Join(errs...)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	e.logger.InfoContext(ctx, "segment sweep finished",
		"triggers", len(triggers),
		"started", len(result.Started),
		"skipped", result.Skipped,
		"failed", result.Failed,
	)

	return result, err
}

func (e *Evaluator) sweepSegment(ctx context.Context, trigger *models.JourneyTrigger, segmentID string) (Result, error) {
	var result Result

	contacts, err := e.members.SegmentMembers(ctx, trigger.OrganizationID, segmentID)
	if err != nil {
		result.Failed++

		e.logger.ErrorContext(ctx, "failed to load segment members", "trigger_id", trigger.ID, "segment_id", segmentID, "error", err)

		return result, fmt.Errorf("trigger %s: failed to load members of segment %s: %w", trigger.ID, segmentID, err)
	}

	var errs []error

	for _, contactID := range contacts {
		result.Evaluated++
		errs = append(errs, e.fire(ctx, trigger, contactID, &result))
	}

	return result, errors.Join(errs...)
}

// fire starts the trigger's journey for the contact unless the contact
// already has an active execution of it.
func (e *Evaluator) fire(ctx context.Context, trigger *models.JourneyTrigger, contactID string, result *Result) error {
	logger := e.logger.With("trigger_id", trigger.ID, "journey_id", trigger.JourneyID, "contact_id", contactID)

	_, err := e.executions.ActiveExecution(ctx, trigger.OrganizationID, trigger.JourneyID, contactID)
	switch {
	case err == nil:
		result.Skipped++
		logger.DebugContext(ctx, "contact already in journey, skipping")

		return nil
	case !persistence.IsExecutionNotFound(err):
		result.Failed++
		logger.ErrorContext(ctx, "failed to check active execution", "error", err)

		return fmt.Errorf("trigger %s: %w", trigger.ID, err)
	}

	execution, err := e.starter.Start(ctx, journey.StartRequest{
		JourneyID:      trigger.JourneyID,
		ContactID:      contactID,
		OrganizationID: trigger.OrganizationID,
		TriggerID:      trigger.ID,
	})

	switch {
	case err == nil:
		result.Started = append(result.Started, execution)
		logger.InfoContext(ctx, "trigger fired", "execution_id", execution.ID, "trigger_type", trigger.Type)

		return nil
	case persistence.IsActiveExecutionExists(err), errors.Is(err, journey.ErrJourneyNotActive):
		// Lost a race with a concurrent start or a pause.
		result.Skipped++
		logger.DebugContext(ctx, "trigger not started", "reason", err)

		return nil
	default:
		result.Failed++
		logger.ErrorContext(ctx, "failed to start journey", "error", err)

		return fmt.Errorf("trigger %s: %w", trigger.ID, err)
	}
}
