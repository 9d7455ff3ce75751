package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/eventbus"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/events"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/otelhelper"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/persistence"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/queue"
)

// Dispatcher matches trigger events to active automations and starts runs.
type Dispatcher struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	jobQueue    queue.Queue
	eventBus    eventbus.EventPublisher
	tracer      trace.Tracer
}

// NewDispatcher wires the dispatcher. The event bus may be nil.
func NewDispatcher(logger *slog.Logger, persist persistence.Persistence, jobQueue queue.Queue, eventBus eventbus.EventPublisher) *Dispatcher {
	return &Dispatcher{
		logger:      logger.With("module", "dispatcher"),
		persistence: persist,
		jobQueue:    jobQueue,
		eventBus:    eventBus,
		tracer:      otel.Tracer("workflow-dispatcher"),
	}
}

// Dispatch starts a run for every matching automation that has steps and no
// active run for this customer. Failures are collected per automation so one
// broken automation cannot block the rest.
func (d *Dispatcher) Dispatch(ctx context.Context, job TriggerJob) error {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatch_trigger",
		attribute.String(otelhelper.TriggerKey, string(job.Trigger)),
		attribute.String(otelhelper.CustomerIDKey, job.CustomerID),
	)
	defer span.End()

	automations, err := d.matchAutomations(ctx, job)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	var errs []error

	for _, automation := range automations {
		err := d.startRun(ctx, automation, job)
		if err != nil {
			errs = append(errs, fmt.Errorf("automation %s: %w", automation.ID, err))
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		otelhelper.SetError(span, err)

		return err
	}

	return nil
}

func (d *Dispatcher) matchAutomations(ctx context.Context, job TriggerJob) ([]*models.Automation, error) {
	if job.AutomationID != "" {
		automation, err := d.persistence.AutomationByID(ctx, job.AutomationID)
		if err != nil {
			return nil, fmt.Errorf("failed to load automation %s: %w", job.AutomationID, err)
		}

		if automation == nil {
			return nil, fmt.Errorf("automation %s not found", job.AutomationID)
		}

		if !automation.Active {
			d.logger.InfoContext(ctx, "skipping inactive automation", "automation_id", automation.ID)

			return nil, nil
		}

		return []*models.Automation{automation}, nil
	}

	automations, err := d.persistence.ActiveAutomationsByTrigger(ctx, job.Trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to load automations for trigger %s: %w", job.Trigger, err)
	}

	return automations, nil
}

func (d *Dispatcher) startRun(ctx context.Context, automation *models.Automation, job TriggerJob) error {
	if len(automation.Steps) == 0 {
		d.logger.DebugContext(ctx, "skipping automation without steps", "automation_id", automation.ID)

		return nil
	}

	existing, err := d.persistence.ActiveRun(ctx, automation.ID, job.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to check for active run: %w", err)
	}

	if existing != nil {
		d.logger.InfoContext(ctx, "skipping automation with active run",
			"automation_id", automation.ID, "customer_id", job.CustomerID, "run_id", existing.ID)

		return nil
	}

	var runContext json.RawMessage

	if len(job.Data) > 0 {
		raw, err := json.Marshal(job.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal trigger data: %w", err)
		}

		runContext = raw
	}

	firstStep := automation.Steps[0]

	run := &models.WorkflowRun{
		AutomationID:  automation.ID,
		CustomerID:    job.CustomerID,
		Status:        models.RunStatusRunning,
		CurrentStepID: firstStep.ID,
		Context:       runContext,
	}

	err = d.persistence.CreateRun(ctx, run)
	if err != nil {
		if errors.Is(err, persistence.ErrDuplicateActiveRun) {
			d.logger.InfoContext(ctx, "run already started concurrently",
				"automation_id", automation.ID, "customer_id", job.CustomerID)

			return nil
		}

		return fmt.Errorf("failed to create run: %w", err)
	}

	if d.eventBus != nil {
		publishErr := d.eventBus.Publish(ctx, automation.ID, events.RunStarted{
			BaseEvent:  events.NewBaseEvent(events.RunStartedEvent, automation.ID),
			RunID:      run.ID,
			CustomerID: run.CustomerID,
			Trigger:    string(job.Trigger),
		})
		if publishErr != nil {
			d.logger.ErrorContext(ctx, "failed to publish run started event", "run_id", run.ID, "error", publishErr)
		}
	}

	err = d.jobQueue.Enqueue(ctx, QueueAutomation, JobExecuteStep, ExecuteStepJob{
		RunID:  run.ID,
		StepID: firstStep.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue first step: %w", err)
	}

	d.logger.InfoContext(ctx, "run started",
		"run_id", run.ID, "automation_id", automation.ID, "customer_id", job.CustomerID, "trigger", job.Trigger)

	return nil
}
