package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/persistence"
)

const pqUniqueViolation = "23505"

// RunRepository handles workflow run and run log database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

// Create inserts a new run. The partial unique index on active runs turns a
// concurrent duplicate into ErrDuplicateActiveRun.
func (r *RunRepository) Create(ctx context.Context, run *models.WorkflowRun) error {
	if run.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate run ID: %w", err)
		}

		run.ID = id.String()
	}

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_runs (id, automation_id, customer_id, status, current_step_id, context, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.AutomationID,
		run.CustomerID,
		run.Status,
		nullableID(run.CurrentStepID),
		nullableJSON(run.Context),
		run.Error,
		run.StartedAt,
		run.CompletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return persistence.ErrDuplicateActiveRun
		}

		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	query := `
		SELECT
			id
		  , automation_id
		  , customer_id
		  , status
		  , current_step_id
		  , context
		  , error
		  , started_at
		  , completed_at
		FROM workflow_runs
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	run, err := r.scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

// Update persists the run's current status, position and terminal fields.
func (r *RunRepository) Update(ctx context.Context, run *models.WorkflowRun) error {
	query := `
		UPDATE workflow_runs
		SET status = $2
		  , current_step_id = $3
		  , error = $4
		  , completed_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Status,
		nullableID(run.CurrentStepID),
		run.Error,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}

	return nil
}

// ActiveRun returns the RUNNING, PAUSED or WAITING run for the pair, or nil.
func (r *RunRepository) ActiveRun(ctx context.Context, automationID, customerID string) (*models.WorkflowRun, error) {
	query := `
		SELECT
			id
		  , automation_id
		  , customer_id
		  , status
		  , current_step_id
		  , context
		  , error
		  , started_at
		  , completed_at
		FROM workflow_runs
		WHERE automation_id = $1
		  AND customer_id = $2
		  AND status IN ('RUNNING', 'PAUSED', 'WAITING')
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, query, automationID, customerID)

	run, err := r.scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan active run: %w", err)
	}

	return run, nil
}

// WaitingByCustomer returns the customer's WAITING runs, oldest first.
func (r *RunRepository) WaitingByCustomer(ctx context.Context, customerID string) ([]*models.WorkflowRun, error) {
	query := `
		SELECT
			id
		  , automation_id
		  , customer_id
		  , status
		  , current_step_id
		  , context
		  , error
		  , started_at
		  , completed_at
		FROM workflow_runs
		WHERE customer_id = $1 AND status = 'WAITING'
		ORDER BY started_at
	`

	rows, err := r.db.QueryContext(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query waiting runs: %w", err)
	}

	defer func(ctx context.Context, r *RunRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	runs := make([]*models.WorkflowRun, 0)

	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan waiting run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating waiting runs: %w", err)
	}

	return runs, nil
}

// AppendLog writes one step execution record.
func (r *RunRepository) AppendLog(ctx context.Context, entry *models.WorkflowRunLog) error {
	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate run log ID: %w", err)
		}

		entry.ID = id.String()
	}

	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO workflow_run_logs (id, run_id, step_id, action, input, output, success, error, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.RunID,
		entry.StepID,
		entry.Action,
		nullableJSON(entry.Input),
		nullableJSON(entry.Output),
		entry.Success,
		entry.Error,
		entry.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append run log: %w", err)
	}

	return nil
}

// Logs returns the run's execution records in execution order.
func (r *RunRepository) Logs(ctx context.Context, runID string) ([]*models.WorkflowRunLog, error) {
	query := `
		SELECT
			id
		  , run_id
		  , step_id
		  , action
		  , input
		  , output
		  , success
		  , error
		  , executed_at
		FROM workflow_run_logs
		WHERE run_id = $1
		ORDER BY executed_at
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run logs: %w", err)
	}

	defer func(ctx context.Context, r *RunRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	logs := make([]*models.WorkflowRunLog, 0)

	for rows.Next() {
		var (
			entry  models.WorkflowRunLog
			input  []byte
			output []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.StepID,
			&entry.Action,
			&input,
			&output,
			&entry.Success,
			&entry.Error,
			&entry.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}

		entry.Input = input
		entry.Output = output
		logs = append(logs, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating run logs: %w", err)
	}

	return logs, nil
}

func (r *RunRepository) scanRun(row interface{ Scan(...any) error }) (*models.WorkflowRun, error) {
	var (
		run         models.WorkflowRun
		currentStep sql.NullString
		runContext  []byte
	)

	err := row.Scan(
		&run.ID,
		&run.AutomationID,
		&run.CustomerID,
		&run.Status,
		&currentStep,
		&runContext,
		&run.Error,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	run.CurrentStepID = currentStep.String
	run.Context = runContext

	return &run, nil
}

// nullableID maps the empty step position to SQL NULL.
func nullableID(id string) any {
	if id == "" {
		return nil
	}

	return id
}
