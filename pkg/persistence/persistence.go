// Package persistence provides the data storage abstraction for the
// automation engine and the CRM records its steps touch.
package persistence

import (
	"context"
	"errors"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
)

// ErrDuplicateActiveRun is returned by CreateRun when another run for the
// same (automation, customer) pair is already RUNNING, PAUSED or WAITING.
// Backends enforcing this at the data layer (postgres partial unique index)
// report it; the dispatcher treats it as "already running" and skips.
var ErrDuplicateActiveRun = errors.New("active run already exists for automation and customer")

type Persistence interface {
	// Automation definitions. Steps are always returned ordered by their
	// order index; the engine re-reads them on every step execution.
	ActiveAutomationsByTrigger(ctx context.Context, trigger models.TriggerKind) ([]*models.Automation, error)
	AutomationByID(ctx context.Context, id string) (*models.Automation, error)
	SaveAutomation(ctx context.Context, automation *models.Automation) error

	// Workflow runs and their append-only logs.
	CreateRun(ctx context.Context, run *models.WorkflowRun) error
	RunByID(ctx context.Context, id string) (*models.WorkflowRun, error)
	UpdateRun(ctx context.Context, run *models.WorkflowRun) error
	ActiveRun(ctx context.Context, automationID, customerID string) (*models.WorkflowRun, error)
	WaitingRunsByCustomer(ctx context.Context, customerID string) ([]*models.WorkflowRun, error)
	AppendRunLog(ctx context.Context, entry *models.WorkflowRunLog) error
	RunLogs(ctx context.Context, runID string) ([]*models.WorkflowRunLog, error)

	// Customers and the records step side effects write.
	CustomerByID(ctx context.Context, id string) (*models.Customer, error)
	SaveCustomer(ctx context.Context, customer *models.Customer) error
	UpdateCustomerStage(ctx context.Context, customerID string, stage models.LeadStage) error
	ListCustomers(ctx context.Context) ([]*models.Customer, error)
	CreateMessage(ctx context.Context, message *models.Message) error
	RecentMessages(ctx context.Context, customerID string, limit int) ([]*models.Message, error)
	UpsertTagByName(ctx context.Context, name string, aiGenerated bool) (*models.Tag, error)
	TagCustomer(ctx context.Context, customerID, tagID string) error
	CustomerTags(ctx context.Context, customerID string) ([]*models.Tag, error)
	CreateFollowUp(ctx context.Context, followUp *models.ScheduledFollowUp) error
	CreateActivity(ctx context.Context, activity *models.Activity) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
