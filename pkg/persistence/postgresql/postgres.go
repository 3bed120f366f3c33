// Package postgresql provides PostgreSQL persistence implementation for journeys, triggers and executions.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/journey/pkg/persistence"
	"github.com/dukex/journey/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	journeyRepo   *JourneyRepository
	executionRepo *ExecutionRepository
	triggerRepo   *TriggerRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:            database,
		logger:        logger,
		journeyRepo:   NewJourneyRepository(database, logger),
		executionRepo: NewExecutionRepository(database, logger),
		triggerRepo:   NewTriggerRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) JourneyRepository() persistence.JourneyRepository {
	return p.journeyRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository {
	return p.triggerRepo
}

// SegmentMembers returns the contacts currently in a segment according to the
// segmentation service's membership table.
func (p *Persistence) SegmentMembers(ctx context.Context, organizationID, segmentID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT contact_id FROM segment_memberships
		WHERE organization_id = $1 AND segment_id = $2
		ORDER BY joined_at, contact_id
	`, organizationID, segmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query segment members: %w", err)
	}

	defer closeRows(ctx, p.logger, rows)

	var contacts []string

	for rows.Next() {
		var contactID string

		err := rows.Scan(&contactID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan segment member: %w", err)
		}

		contacts = append(contacts, contactID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating segment members: %w", err)
	}

	return contacts, nil
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	if closeErr := rows.Close(); closeErr != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
	}
}

type scanner interface {
	Scan(dest ...any) error
}
