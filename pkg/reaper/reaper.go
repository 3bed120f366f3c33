// Package reaper cancels executions that have been active for too long.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/otelhelper"
	"github.com/dukex/journey/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultThreshold is the age after which an active execution is considered stale.
const DefaultThreshold = 7 * 24 * time.Hour

// CancelReason is recorded on every execution the reaper cancels.
const CancelReason = "stale"

type Reaper struct {
	logger     *slog.Logger
	executions persistence.ExecutionRepository
	threshold  time.Duration
	now        func() time.Time
}

// New creates a reaper. A non-positive threshold uses DefaultThreshold.
func New(logger *slog.Logger, executions persistence.ExecutionRepository, threshold time.Duration) *Reaper {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	return &Reaper{
		logger:     logger.With("module", "stale_reaper"),
		executions: executions,
		threshold:  threshold,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (r *Reaper) WithClock(now func() time.Time) *Reaper {
	r.now = now

	return r
}

func (r *Reaper) Threshold() time.Duration {
	return r.threshold
}

// CleanupStaleExecutions cancels every active execution started before now
// minus the threshold and returns how many were canceled. A failure on one
// execution does not stop the sweep; all failures are returned joined.
func (r *Reaper) CleanupStaleExecutions(ctx context.Context) (int, error) {
	ctx, span := otelhelper.StartSpan(ctx, "journey.reaper sweep")
	defer span.End()

	now := r.now()
	cutoff := now.Add(-r.threshold)

	stale, err := r.executions.StaleExecutions(ctx, cutoff)
	if err != nil {
		otelhelper.SetError(span, err)

		return 0, fmt.Errorf("failed to list stale executions: %w", err)
	}

	var (
		canceled int
		errs     []error
	)

	for _, execution := range stale {
		ok, err := r.cancel(ctx, execution, now)
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to cancel stale execution", "execution_id", execution.ID, "error", err)
			errs = append(errs, err)

			continue
		}

		if ok {
			canceled++
		}
	}

	span.SetAttributes(attribute.Int("journey.reaper.canceled", canceled))

	err = errors.Join(errs...)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	if canceled > 0 || err != nil {
		r.logger.InfoContext(ctx, "stale sweep finished", "found", len(stale), "canceled", canceled, "cutoff", cutoff)
	}

	return canceled, err
}

// cancel reports false when execution finished between the listing and the save.
func (r *Reaper) cancel(ctx context.Context, execution *models.JourneyExecution, now time.Time) (bool, error) {
	if !execution.Cancel(CancelReason, now) {
		return false, nil
	}

	err := r.executions.SaveExecution(ctx, execution)
	if persistence.IsExecutionNotActive(err) {
		r.logger.DebugContext(ctx, "stale execution finished concurrently", "execution_id", execution.ID)

		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to cancel execution %s: %w", execution.ID, err)
	}

	logErr := r.executions.LogExecution(ctx, models.NewExecutionLog(execution, execution.CurrentStepID, models.LogLevelWarn,
		"canceled due to staleness", map[string]any{
			"started_at": execution.StartedAt,
			"threshold":  r.threshold.String(),
		}))
	if logErr != nil {
		r.logger.WarnContext(ctx, "failed to write execution log", "execution_id", execution.ID, "error", logErr)
	}

	r.logger.WarnContext(ctx, "canceled due to staleness",
		"execution_id", execution.ID,
		"journey_id", execution.JourneyID,
		"contact_id", execution.ContactID,
		"started_at", execution.StartedAt,
	)

	return true, nil
}
