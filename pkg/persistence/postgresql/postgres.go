// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db             *sql.DB
	logger         *slog.Logger
	automationRepo *AutomationRepository
	runRepo        *RunRepository
	customerRepo   *CustomerRepository
}

// NewPersistence connects, runs migrations and returns the persistence layer.
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
		db:             database,
		logger:         logger,
		automationRepo: NewAutomationRepository(database, logger),
		runRepo:        NewRunRepository(database, logger),
		customerRepo:   NewCustomerRepository(database, logger),
	}

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
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

func (p *Persistence) ActiveAutomationsByTrigger(ctx context.Context, trigger models.TriggerKind) ([]*models.Automation, error) {
	return p.automationRepo.ActiveByTrigger(ctx, trigger)
}

func (p *Persistence) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	return p.automationRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	return p.automationRepo.Save(ctx, automation)
}

func (p *Persistence) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	return p.runRepo.Create(ctx, run)
}

func (p *Persistence) RunByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	return p.runRepo.GetByID(ctx, id)
}

func (p *Persistence) UpdateRun(ctx context.Context, run *models.WorkflowRun) error {
	return p.runRepo.Update(ctx, run)
}

func (p *Persistence) ActiveRun(ctx context.Context, automationID, customerID string) (*models.WorkflowRun, error) {
	return p.runRepo.ActiveRun(ctx, automationID, customerID)
}

func (p *Persistence) WaitingRunsByCustomer(ctx context.Context, customerID string) ([]*models.WorkflowRun, error) {
	return p.runRepo.WaitingByCustomer(ctx, customerID)
}

func (p *Persistence) AppendRunLog(ctx context.Context, entry *models.WorkflowRunLog) error {
	return p.runRepo.AppendLog(ctx, entry)
}

func (p *Persistence) RunLogs(ctx context.Context, runID string) ([]*models.WorkflowRunLog, error) {
	return p.runRepo.Logs(ctx, runID)
}

func (p *Persistence) CustomerByID(ctx context.Context, id string) (*models.Customer, error) {
	return p.customerRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveCustomer(ctx context.Context, customer *models.Customer) error {
	return p.customerRepo.Save(ctx, customer)
}

func (p *Persistence) UpdateCustomerStage(ctx context.Context, customerID string, stage models.LeadStage) error {
	return p.customerRepo.UpdateStage(ctx, customerID, stage)
}

func (p *Persistence) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	return p.customerRepo.List(ctx)
}

func (p *Persistence) CreateMessage(ctx context.Context, message *models.Message) error {
	return p.customerRepo.CreateMessage(ctx, message)
}

func (p *Persistence) RecentMessages(ctx context.Context, customerID string, limit int) ([]*models.Message, error) {
	return p.customerRepo.RecentMessages(ctx, customerID, limit)
}

func (p *Persistence) UpsertTagByName(ctx context.Context, name string, aiGenerated bool) (*models.Tag, error) {
	return p.customerRepo.UpsertTagByName(ctx, name, aiGenerated)
}

func (p *Persistence) TagCustomer(ctx context.Context, customerID, tagID string) error {
	return p.customerRepo.TagCustomer(ctx, customerID, tagID)
}

func (p *Persistence) CustomerTags(ctx context.Context, customerID string) ([]*models.Tag, error) {
	return p.customerRepo.CustomerTags(ctx, customerID)
}

func (p *Persistence) CreateFollowUp(ctx context.Context, followUp *models.ScheduledFollowUp) error {
	return p.customerRepo.CreateFollowUp(ctx, followUp)
}

func (p *Persistence) CreateActivity(ctx context.Context, activity *models.Activity) error {
	return p.customerRepo.CreateActivity(ctx, activity)
}
