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
)

// JourneyRepository handles journey, version, step and connection database operations.
type JourneyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewJourneyRepository creates a new journey repository.
func NewJourneyRepository(db *sql.DB, logger *slog.Logger) *JourneyRepository {
	return &JourneyRepository{db: db, logger: logger}
}

// SaveJourney inserts or updates a journey.
func (r *JourneyRepository) SaveJourney(ctx context.Context, journey *models.Journey) error {
	query := `
		INSERT INTO journeys (
			id, organization_id, name, description, status, created_by,
			published_version_id, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			published_version_id = EXCLUDED.published_version_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		journey.ID,
		journey.OrganizationID,
		journey.Name,
		journey.Description,
		journey.Status,
		journey.CreatedBy,
		journey.PublishedVersionID,
		journey.CreatedAt,
		journey.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save journey: %w", err)
	}

	return nil
}

// JourneyByID retrieves a journey by its ID.
func (r *JourneyRepository) JourneyByID(ctx context.Context, id string) (*models.Journey, error) {
	query := `
		SELECT id, organization_id, name, description, status, COALESCE(created_by, ''),
			   COALESCE(published_version_id, ''), created_at, updated_at
		FROM journeys
		WHERE id = $1
	`

	var journey models.Journey

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&journey.ID,
		&journey.OrganizationID,
		&journey.Name,
		&journey.Description,
		&journey.Status,
		&journey.CreatedBy,
		&journey.PublishedVersionID,
		&journey.CreatedAt,
		&journey.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("JourneyByID", "journey", id, persistence.ErrJourneyNotFound)
		}

		return nil, fmt.Errorf("failed to scan journey: %w", err)
	}

	return &journey, nil
}

// SaveVersion replaces a draft version together with its steps and connections.
func (r *JourneyRepository) SaveVersion(ctx context.Context, version *models.JourneyVersion) error {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	var status models.VersionStatus

	err = transaction.QueryRowContext(ctx, `SELECT status FROM journey_versions WHERE id = $1 FOR UPDATE`, version.ID).Scan(&status)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = transaction.ExecContext(ctx, `
			INSERT INTO journey_versions (id, journey_id, organization_id, number, status, created_at, published_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, version.ID, version.JourneyID, version.OrganizationID, version.Number, version.Status, version.CreatedAt, version.PublishedAt)
		if err != nil {
			return fmt.Errorf("failed to insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to lock version: %w", err)
	case status != models.VersionStatusDraft:
		return persistence.NewEntityError("SaveVersion", "version", version.ID, persistence.ErrVersionImmutable)
	default:
		_, err = transaction.ExecContext(ctx, `UPDATE journey_versions SET number = $2 WHERE id = $1`, version.ID, version.Number)
		if err != nil {
			return fmt.Errorf("failed to update version: %w", err)
		}

		for _, table := range []string{"step_connections", "journey_steps"} {
			_, err = transaction.ExecContext(ctx, "DELETE FROM "+table+" WHERE version_id = $1", version.ID)
			if err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
	}

	for ordinal, step := range version.Steps {
		configJSON, err := json.Marshal(step.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal config of step %s: %w", step.ID, err)
		}

		_, err = transaction.ExecContext(ctx, `
			INSERT INTO journey_steps (id, version_id, organization_id, step_type, name, config, position_x, position_y, ordinal)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, step.ID, version.ID, version.OrganizationID, step.Type, step.Name, configJSON, step.PositionX, step.PositionY, ordinal)
		if err != nil {
			return fmt.Errorf("failed to insert step %s: %w", step.ID, err)
		}
	}

	for _, conn := range version.Connections {
		_, err = transaction.ExecContext(ctx, `
			INSERT INTO step_connections (id, version_id, from_step_id, to_step_id, label, position)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, conn.ID, version.ID, conn.FromStepID, conn.ToStepID, conn.Label, conn.Position)
		if err != nil {
			return fmt.Errorf("failed to insert connection %s: %w", conn.ID, err)
		}
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit version: %w", err)
	}

	return nil
}

// VersionByID retrieves a version with its full step graph.
func (r *JourneyRepository) VersionByID(ctx context.Context, id string) (*models.JourneyVersion, error) {
	var version models.JourneyVersion

	err := r.db.QueryRowContext(ctx, `
		SELECT id, journey_id, organization_id, number, status, created_at, published_at
		FROM journey_versions
		WHERE id = $1
	`, id).Scan(
		&version.ID,
		&version.JourneyID,
		&version.OrganizationID,
		&version.Number,
		&version.Status,
		&version.CreatedAt,
		&version.PublishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("VersionByID", "version", id, persistence.ErrVersionNotFound)
		}

		return nil, fmt.Errorf("failed to scan version: %w", err)
	}

	version.Steps, err = r.querySteps(ctx, `WHERE version_id = $1 ORDER BY ordinal`, id)
	if err != nil {
		return nil, err
	}

	version.Connections, err = r.queryConnections(ctx, `WHERE version_id = $1 ORDER BY position, id`, id)
	if err != nil {
		return nil, err
	}

	return &version, nil
}

// PublishVersion publishes a draft version and supersedes the previously published one.
func (r *JourneyRepository) PublishVersion(ctx context.Context, journeyID, versionID string, publishedAt time.Time) error {
	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	var previousVersionID sql.NullString

	err = transaction.QueryRowContext(ctx, `SELECT published_version_id FROM journeys WHERE id = $1 FOR UPDATE`, journeyID).Scan(&previousVersionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewEntityError("PublishVersion", "journey", journeyID, persistence.ErrJourneyNotFound)
		}

		return fmt.Errorf("failed to lock journey: %w", err)
	}

	var status models.VersionStatus

	err = transaction.QueryRowContext(ctx, `
		SELECT status FROM journey_versions WHERE id = $1 AND journey_id = $2 FOR UPDATE
	`, versionID, journeyID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewEntityError("PublishVersion", "version", versionID, persistence.ErrVersionNotFound)
		}

		return fmt.Errorf("failed to lock version: %w", err)
	}

	if status != models.VersionStatusDraft {
		return persistence.NewEntityError("PublishVersion", "version", versionID, persistence.ErrVersionImmutable)
	}

	if previousVersionID.Valid {
		_, err = transaction.ExecContext(ctx, `UPDATE journey_versions SET status = $2 WHERE id = $1`,
			previousVersionID.String, models.VersionStatusSuperseded)
		if err != nil {
			return fmt.Errorf("failed to supersede version %s: %w", previousVersionID.String, err)
		}
	}

	_, err = transaction.ExecContext(ctx, `UPDATE journey_versions SET status = $2, published_at = $3 WHERE id = $1`,
		versionID, models.VersionStatusPublished, publishedAt)
	if err != nil {
		return fmt.Errorf("failed to publish version: %w", err)
	}

	_, err = transaction.ExecContext(ctx, `
		UPDATE journeys SET published_version_id = $2, status = $3, updated_at = $4 WHERE id = $1
	`, journeyID, versionID, models.JourneyStatusActive, publishedAt)
	if err != nil {
		return fmt.Errorf("failed to activate journey: %w", err)
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit publish: %w", err)
	}

	return nil
}

// StepByID retrieves a single step.
func (r *JourneyRepository) StepByID(ctx context.Context, stepID string) (*models.JourneyStep, error) {
	steps, err := r.querySteps(ctx, `WHERE id = $1`, stepID)
	if err != nil {
		return nil, err
	}

	if len(steps) == 0 {
		return nil, persistence.NewEntityError("StepByID", "step", stepID, persistence.ErrStepNotFound)
	}

	return steps[0], nil
}

// ConnectionsFrom returns the outgoing connections of a step ordered by position.
func (r *JourneyRepository) ConnectionsFrom(ctx context.Context, stepID string) ([]*models.StepConnection, error) {
	return r.queryConnections(ctx, `WHERE from_step_id = $1 ORDER BY position, id`, stepID)
}

func (r *JourneyRepository) querySteps(ctx context.Context, where string, args ...any) ([]*models.JourneyStep, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, version_id, organization_id, step_type, name, config, position_x, position_y
		FROM journey_steps `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	steps := make([]*models.JourneyStep, 0)

	for rows.Next() {
		var (
			step       models.JourneyStep
			configJSON []byte
		)

		err := rows.Scan(&step.ID, &step.VersionID, &step.OrganizationID, &step.Type, &step.Name,
			&configJSON, &step.PositionX, &step.PositionY)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		step.Config = make(map[string]any)

		if configJSON != nil {
			err := json.Unmarshal(configJSON, &step.Config)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal config of step %s: %w", step.ID, err)
			}
		}

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating steps: %w", err)
	}

	return steps, nil
}

func (r *JourneyRepository) queryConnections(ctx context.Context, where string, args ...any) ([]*models.StepConnection, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, version_id, from_step_id, to_step_id, label, position
		FROM step_connections `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	connections := make([]*models.StepConnection, 0)

	for rows.Next() {
		var conn models.StepConnection

		err := rows.Scan(&conn.ID, &conn.VersionID, &conn.FromStepID, &conn.ToStepID, &conn.Label, &conn.Position)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}

		connections = append(connections, &conn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return connections, nil
}
