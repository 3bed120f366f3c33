package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/journey/pkg/models"
)

// TriggerRepository handles journey trigger database operations.
type TriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTriggerRepository creates a new trigger repository.
func NewTriggerRepository(db *sql.DB, logger *slog.Logger) *TriggerRepository {
	return &TriggerRepository{db: db, logger: logger}
}

// SaveTrigger inserts or updates a trigger.
func (r *TriggerRepository) SaveTrigger(ctx context.Context, trigger *models.JourneyTrigger) error {
	configJSON, err := json.Marshal(trigger.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO journey_triggers (id, journey_id, organization_id, trigger_type, config, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			trigger_type = EXCLUDED.trigger_type,
			config = EXCLUDED.config,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`,
		trigger.ID,
		trigger.JourneyID,
		trigger.OrganizationID,
		trigger.Type,
		configJSON,
		trigger.Enabled,
		trigger.CreatedAt,
		trigger.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trigger: %w", err)
	}

	return nil
}

// TriggersByType returns enabled triggers of active journeys in an organization.
func (r *TriggerRepository) TriggersByType(ctx context.Context, organizationID string, triggerType models.TriggerType) ([]*models.JourneyTrigger, error) {
	return r.query(ctx, `AND t.organization_id = $2 AND t.trigger_type = $3`,
		models.JourneyStatusActive, organizationID, triggerType)
}

// SegmentTriggers returns enabled segment triggers of active journeys across organizations.
func (r *TriggerRepository) SegmentTriggers(ctx context.Context) ([]*models.JourneyTrigger, error) {
	return r.query(ctx, `AND t.trigger_type = $2`, models.JourneyStatusActive, models.TriggerTypeSegment)
}

func (r *TriggerRepository) query(ctx context.Context, filter string, args ...any) ([]*models.JourneyTrigger, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.journey_id, t.organization_id, t.trigger_type, t.config, t.enabled, t.created_at, t.updated_at
		FROM journey_triggers t
		JOIN journeys j ON j.id = t.journey_id
		WHERE t.enabled AND j.status = $1 `+filter+`
		ORDER BY t.created_at, t.id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	var triggers []*models.JourneyTrigger

	for rows.Next() {
		var (
			trigger    models.JourneyTrigger
			configJSON []byte
		)

		err := rows.Scan(&trigger.ID, &trigger.JourneyID, &trigger.OrganizationID, &trigger.Type,
			&configJSON, &trigger.Enabled, &trigger.CreatedAt, &trigger.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}

		trigger.Config = make(map[string]any)

		if configJSON != nil {
			err := json.Unmarshal(configJSON, &trigger.Config)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
			}
		}

		triggers = append(triggers, &trigger)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating triggers: %w", err)
	}

	return triggers, nil
}
