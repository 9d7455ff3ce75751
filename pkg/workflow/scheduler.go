package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/persistence"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/queue"
)

// Scheduler fires SCHEDULED automations on their cron expressions. Each tick
// fans out one trigger job per customer so runs are dispatched and guarded
// individually.
type Scheduler struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	jobQueue    queue.Queue
	cron        *cron.Cron
}

// NewScheduler creates the cron scheduler.
func NewScheduler(logger *slog.Logger, persist persistence.Persistence, jobQueue queue.Queue) *Scheduler {
	return &Scheduler{
		logger:      logger.With("module", "scheduler"),
		persistence: persist,
		jobQueue:    jobQueue,
		cron:        cron.New(),
	}
}

// Start registers every active SCHEDULED automation and starts the cron
// loop. Automations created after Start are picked up on the next restart.
func (s *Scheduler) Start(ctx context.Context) error {
	automations, err := s.persistence.ActiveAutomationsByTrigger(ctx, models.TriggerScheduled)
	if err != nil {
		return fmt.Errorf("failed to load scheduled automations: %w", err)
	}

	for _, automation := range automations {
		expression := automation.ScheduleCron()
		automationID := automation.ID

		_, err := s.cron.AddFunc(expression, func() {
			s.fire(ctx, automationID)
		})
		if err != nil {
			return fmt.Errorf("automation %s has invalid cron %q: %w", automation.ID, expression, err)
		}

		s.logger.InfoContext(ctx, "scheduled automation registered",
			"automation_id", automation.ID, "cron", expression)
	}

	s.cron.Start()

	return nil
}

// Stop halts the cron loop and waits for in-flight ticks.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) fire(ctx context.Context, automationID string) {
	customers, err := s.persistence.ListCustomers(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list customers for scheduled automation",
			"automation_id", automationID, "error", err)

		return
	}

	for _, customer := range customers {
		err := s.jobQueue.Enqueue(ctx, QueueAutomation, JobTrigger, TriggerJob{
			Trigger:      models.TriggerScheduled,
			CustomerID:   customer.ID,
			AutomationID: automationID,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to enqueue scheduled trigger",
				"automation_id", automationID, "customer_id", customer.ID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "scheduled automation fired",
		"automation_id", automationID, "customers", len(customers))
}
