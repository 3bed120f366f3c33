package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/journey/pkg/models"
	"github.com/dukex/journey/pkg/persistence"
	"github.com/lib/pq"
)

const (
	uniqueViolation      = "23505"
	oneActiveConstraint  = "idx_journey_executions_one_active"
	executionColumns     = `id, journey_id, version_id, organization_id, contact_id, COALESCE(trigger_id, ''), status,
		COALESCE(current_step_id, ''), started_at, completed_at, canceled_at, COALESCE(cancel_reason, '')`
	stepExecutionColumns = `id, execution_id, step_id, organization_id, status, started_at, completed_at, result,
		COALESCE(error_message, '')`
)

// ExecutionRepository handles execution, step execution and execution log database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// CreateExecution inserts a new execution. The partial unique index on active
// executions turns a concurrent duplicate enrollment into ErrActiveExecutionExists.
func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.JourneyExecution) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO journey_executions (
			id, journey_id, version_id, organization_id, contact_id, trigger_id, status,
			current_step_id, started_at, completed_at, canceled_at, cancel_reason
		)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10, $11, NULLIF($12, ''))
	`,
		execution.ID,
		execution.JourneyID,
		execution.VersionID,
		execution.OrganizationID,
		execution.ContactID,
		execution.TriggerID,
		execution.Status,
		execution.CurrentStepID,
		execution.StartedAt,
		execution.CompletedAt,
		execution.CanceledAt,
		execution.CancelReason,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == oneActiveConstraint {
			return persistence.NewEntityError("CreateExecution", "execution", execution.ID, persistence.ErrActiveExecutionExists)
		}

		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

// ExecutionByID retrieves an execution by its ID.
func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.JourneyExecution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM journey_executions WHERE id = $1`, id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("ExecutionByID", "execution", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// SaveExecution persists the mutable fields of an execution that is still active.
func (r *ExecutionRepository) SaveExecution(ctx context.Context, execution *models.JourneyExecution) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE journey_executions SET
			status = $2,
			current_step_id = NULLIF($3, ''),
			completed_at = $4,
			canceled_at = $5,
			cancel_reason = NULLIF($6, '')
		WHERE id = $1 AND status = $7
	`,
		execution.ID,
		execution.Status,
		execution.CurrentStepID,
		execution.CompletedAt,
		execution.CanceledAt,
		execution.CancelReason,
		models.ExecutionStatusActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected > 0 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM journey_executions WHERE id = $1)`, execution.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check execution: %w", err)
	}

	if !exists {
		return persistence.NewEntityError("SaveExecution", "execution", execution.ID, persistence.ErrExecutionNotFound)
	}

	return persistence.NewEntityError("SaveExecution", "execution", execution.ID, persistence.ErrExecutionNotActive)
}

// ActiveExecution returns the active execution of a contact in a journey.
func (r *ExecutionRepository) ActiveExecution(ctx context.Context, organizationID, journeyID, contactID string) (*models.JourneyExecution, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+executionColumns+` FROM journey_executions
		WHERE organization_id = $1 AND journey_id = $2 AND contact_id = $3 AND status = $4
		LIMIT 1
	`, organizationID, journeyID, contactID, models.ExecutionStatusActive)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("ActiveExecution", "execution", contactID, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// StaleExecutions returns active executions started before olderThan.
func (r *ExecutionRepository) StaleExecutions(ctx context.Context, olderThan time.Time) ([]*models.JourneyExecution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+executionColumns+` FROM journey_executions
		WHERE status = $1 AND started_at < $2
		ORDER BY started_at
	`, models.ExecutionStatusActive, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	var executions []*models.JourneyExecution

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// CreateStepExecution inserts a step execution record.
func (r *ExecutionRepository) CreateStepExecution(ctx context.Context, stepExecution *models.StepExecution) error {
	resultJSON, err := marshalNullable(stepExecution.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal step result: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO step_executions (
			id, execution_id, step_id, organization_id, status, started_at, completed_at, result, error_message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
	`,
		stepExecution.ID,
		stepExecution.ExecutionID,
		stepExecution.StepID,
		stepExecution.OrganizationID,
		stepExecution.Status,
		stepExecution.StartedAt,
		stepExecution.CompletedAt,
		resultJSON,
		stepExecution.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to create step execution: %w", err)
	}

	return nil
}

// UpdateStepExecution persists the outcome of a step execution.
func (r *ExecutionRepository) UpdateStepExecution(ctx context.Context, stepExecution *models.StepExecution) error {
	resultJSON, err := marshalNullable(stepExecution.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal step result: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE step_executions SET status = $2, completed_at = $3, result = $4, error_message = NULLIF($5, '')
		WHERE id = $1
	`,
		stepExecution.ID,
		stepExecution.Status,
		stepExecution.CompletedAt,
		resultJSON,
		stepExecution.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to update step execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewEntityError("UpdateStepExecution", "step execution", stepExecution.ID, persistence.ErrStepExecutionNotFound)
	}

	return nil
}

// StepExecutions lists the step executions of an execution in start order.
func (r *ExecutionRepository) StepExecutions(ctx context.Context, executionID string) ([]*models.StepExecution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+stepExecutionColumns+` FROM step_executions
		WHERE execution_id = $1
		ORDER BY started_at, id
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	var stepExecutions []*models.StepExecution

	for rows.Next() {
		var (
			stepExecution models.StepExecution
			resultJSON    []byte
		)

		err := rows.Scan(
			&stepExecution.ID,
			&stepExecution.ExecutionID,
			&stepExecution.StepID,
			&stepExecution.OrganizationID,
			&stepExecution.Status,
			&stepExecution.StartedAt,
			&stepExecution.CompletedAt,
			&resultJSON,
			&stepExecution.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step execution: %w", err)
		}

		if resultJSON != nil {
			err := json.Unmarshal(resultJSON, &stepExecution.Result)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal step result: %w", err)
			}
		}

		stepExecutions = append(stepExecutions, &stepExecution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step executions: %w", err)
	}

	return stepExecutions, nil
}

// LogExecution appends an execution log entry.
func (r *ExecutionRepository) LogExecution(ctx context.Context, entry *models.ExecutionLog) error {
	metadataJSON, err := marshalNullable(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal log metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO execution_logs (id, execution_id, organization_id, step_id, level, message, metadata, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)
	`,
		entry.ID,
		entry.ExecutionID,
		entry.OrganizationID,
		entry.StepID,
		entry.Level,
		entry.Message,
		metadataJSON,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution log: %w", err)
	}

	return nil
}

// Logs lists the log entries of an execution in creation order.
func (r *ExecutionRepository) Logs(ctx context.Context, executionID string) ([]*models.ExecutionLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, execution_id, organization_id, COALESCE(step_id, ''), level, message, metadata, created_at
		FROM execution_logs
		WHERE execution_id = $1
		ORDER BY created_at, id
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	logs := make([]*models.ExecutionLog, 0)

	for rows.Next() {
		var (
			entry        models.ExecutionLog
			metadataJSON []byte
		)

		err := rows.Scan(&entry.ID, &entry.ExecutionID, &entry.OrganizationID, &entry.StepID,
			&entry.Level, &entry.Message, &metadataJSON, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		if metadataJSON != nil {
			err := json.Unmarshal(metadataJSON, &entry.Metadata)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal log metadata: %w", err)
			}
		}

		logs = append(logs, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return logs, nil
}

func scanExecution(row scanner) (*models.JourneyExecution, error) {
	var execution models.JourneyExecution

	err := row.Scan(
		&execution.ID,
		&execution.JourneyID,
		&execution.VersionID,
		&execution.OrganizationID,
		&execution.ContactID,
		&execution.TriggerID,
		&execution.Status,
		&execution.CurrentStepID,
		&execution.StartedAt,
		&execution.CompletedAt,
		&execution.CanceledAt,
		&execution.CancelReason,
	)
	if err != nil {
		return nil, err
	}

	return &execution, nil
}

// marshalNullable encodes a map as JSON, mapping nil to SQL NULL.
func marshalNullable(value map[string]any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	return json.Marshal(value)
}
