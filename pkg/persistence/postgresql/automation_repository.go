package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
)

// AutomationRepository handles automation definition database operations.
type AutomationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAutomationRepository creates a new automation repository.
func NewAutomationRepository(db *sql.DB, logger *slog.Logger) *AutomationRepository {
	return &AutomationRepository{db: db, logger: logger}
}

// ActiveByTrigger returns every active automation reacting to the given
// trigger, steps loaded and ordered.
func (r *AutomationRepository) ActiveByTrigger(ctx context.Context, trigger models.TriggerKind) ([]*models.Automation, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , trigger
		  , trigger_config
		  , active
		  , created_at
		  , updated_at
		FROM automations
		WHERE trigger = $1 AND active
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}

	defer func(ctx context.Context, r *AutomationRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	automations := make([]*models.Automation, 0)

	for rows.Next() {
		automation, err := r.scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}

		automations = append(automations, automation)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating automations: %w", err)
	}

	for _, automation := range automations {
		err = r.loadSteps(ctx, automation)
		if err != nil {
			return nil, fmt.Errorf("failed to load automation steps: %w", err)
		}
	}

	return automations, nil
}

func (r *AutomationRepository) GetByID(ctx context.Context, id string) (*models.Automation, error) {
	query := `
		SELECT
			id
		  , name
		  , description
		  , trigger
		  , trigger_config
		  , active
		  , created_at
		  , updated_at
		FROM automations
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	automation, err := r.scanAutomation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan automation: %w", err)
	}

	if err := r.loadSteps(ctx, automation); err != nil {
		return nil, fmt.Errorf("failed to load automation steps: %w", err)
	}

	return automation, nil
}

// Save upserts the automation and replaces its step set.
func (r *AutomationRepository) Save(ctx context.Context, automation *models.Automation) error {
	now := time.Now().UTC()

	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now

	if automation.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate automation ID: %w", err)
		}

		automation.ID = id.String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	automationQuery := `
		INSERT INTO automations (id, name, description, trigger, trigger_config, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , description = EXCLUDED.description
		  , trigger = EXCLUDED.trigger
		  , trigger_config = EXCLUDED.trigger_config
		  , active = EXCLUDED.active
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, automationQuery,
		automation.ID,
		automation.Name,
		automation.Description,
		automation.Trigger,
		nullableJSON(automation.TriggerConfig),
		automation.Active,
		automation.CreatedAt,
		automation.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save automation: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM automation_steps WHERE automation_id = $1", automation.ID)
	if err != nil {
		return fmt.Errorf("failed to clear automation steps: %w", err)
	}

	stepQuery := `
		INSERT INTO automation_steps (id, automation_id, step_type, config, step_order, next_step_id, condition_true, condition_false)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	for _, step := range automation.Steps {
		if step.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return fmt.Errorf("failed to generate step ID: %w", err)
			}

			step.ID = id.String()
		}

		step.AutomationID = automation.ID

		_, err = tx.ExecContext(ctx, stepQuery,
			step.ID,
			step.AutomationID,
			step.Type,
			nullableJSON(step.Config),
			step.Order,
			step.NextStepID,
			step.ConditionTrue,
			step.ConditionFalse,
		)
		if err != nil {
			return fmt.Errorf("failed to save automation step: %w", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit automation: %w", err)
	}

	return nil
}

func (r *AutomationRepository) scanAutomation(row interface{ Scan(...any) error }) (*models.Automation, error) {
	var (
		automation    models.Automation
		triggerConfig []byte
	)

	err := row.Scan(
		&automation.ID,
		&automation.Name,
		&automation.Description,
		&automation.Trigger,
		&triggerConfig,
		&automation.Active,
		&automation.CreatedAt,
		&automation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	automation.TriggerConfig = triggerConfig

	return &automation, nil
}

func (r *AutomationRepository) loadSteps(ctx context.Context, automation *models.Automation) error {
	query := `
		SELECT
			id
		  , automation_id
		  , step_type
		  , config
		  , step_order
		  , next_step_id
		  , condition_true
		  , condition_false
		FROM automation_steps
		WHERE automation_id = $1
		ORDER BY step_order
	`

	rows, err := r.db.QueryContext(ctx, query, automation.ID)
	if err != nil {
		return fmt.Errorf("failed to query automation steps: %w", err)
	}

	defer func(ctx context.Context, r *AutomationRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	steps := make([]*models.AutomationStep, 0)

	for rows.Next() {
		var (
			step   models.AutomationStep
			config []byte
		)

		err := rows.Scan(
			&step.ID,
			&step.AutomationID,
			&step.Type,
			&config,
			&step.Order,
			&step.NextStepID,
			&step.ConditionTrue,
			&step.ConditionFalse,
		)
		if err != nil {
			return fmt.Errorf("failed to scan automation step: %w", err)
		}

		step.Config = config
		steps = append(steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating automation steps: %w", err)
	}

	automation.Steps = steps

	return nil
}

// nullableJSON maps an empty raw blob to SQL NULL instead of invalid JSONB.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}

	return raw
}
