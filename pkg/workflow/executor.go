package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/eventbus"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/events"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/otelhelper"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/persistence"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/protocol"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/template"
)

// StepScheduler re-enqueues step execution, optionally after a delay. The
// worker backs it with the job queue.
type StepScheduler interface {
	ScheduleResume(ctx context.Context, runID, stepID string, delay time.Duration) error
}

// Executor advances workflow runs one step at a time. A single call walks
// the chain until the run suspends, completes or fails.
type Executor struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	messenger   protocol.Messenger
	analyzer    protocol.Analyzer
	scheduler   StepScheduler
	eventBus    eventbus.EventPublisher
	tracer      trace.Tracer
	adminPhone  string
}

// NewExecutor wires the executor's collaborators. The event bus may be nil
// when lifecycle events are not needed.
func NewExecutor(
	logger *slog.Logger,
	persist persistence.Persistence,
	messenger protocol.Messenger,
	analyzer protocol.Analyzer,
	scheduler StepScheduler,
	eventBus eventbus.EventPublisher,
	adminPhone string,
) *Executor {
	return &Executor{
		logger:      logger.With("module", "executor"),
		persistence: persist,
		messenger:   messenger,
		analyzer:    analyzer,
		scheduler:   scheduler,
		eventBus:    eventBus,
		tracer:      otel.Tracer("workflow-executor"),
		adminPhone:  adminPhone,
	}
}

// ExecuteStep runs the step and every synchronously reachable successor.
// Suspensions, completions and step failures end the walk without error;
// a returned error means infrastructure failed and the job should retry.
func (e *Executor) ExecuteStep(ctx context.Context, runID, stepID string) error {
	current := stepID

	for current != "" {
		next, err := e.executeOne(ctx, runID, current)
		if err != nil {
			return err
		}

		current = next
	}

	return nil
}

// executeOne executes a single step and returns the ID of the next step to
// run synchronously, or empty when the walk stops.
func (e *Executor) executeOne(ctx context.Context, runID, stepID string) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "execute_step",
		attribute.String(otelhelper.RunIDKey, runID),
		attribute.String(otelhelper.StepIDKey, stepID),
	)
	defer span.End()

	run, err := e.persistence.RunByID(ctx, runID)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	if run == nil {
		return "", fmt.Errorf("run %s not found", runID)
	}

	if run.Status.Terminal() {
		e.logger.DebugContext(ctx, "skipping step on terminal run", "run_id", runID, "status", run.Status)

		return "", nil
	}

	// A scheduled wake-up arrives while the run is still suspended; executing
	// the step is the resume.
	if run.Status != models.RunStatusRunning {
		run.Resume(stepID)
	}

	// Definitions are re-read on every step so edits to an automation take
	// effect on in-flight runs.
	automation, err := e.persistence.AutomationByID(ctx, run.AutomationID)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", fmt.Errorf("failed to load automation %s: %w", run.AutomationID, err)
	}

	if automation == nil {
		e.failRun(ctx, run, stepID, fmt.Sprintf("automation %s no longer exists", run.AutomationID))

		return "", nil
	}

	step := findStep(automation, stepID)
	if step == nil {
		// The step was removed mid-run. Treat the dangling pointer as the
		// end of the chain.
		e.completeRun(ctx, run)

		return "", nil
	}

	span.SetAttributes(attribute.String(otelhelper.StepTypeKey, string(step.Type)))

	customer, err := e.persistence.CustomerByID(ctx, run.CustomerID)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", fmt.Errorf("failed to load customer %s: %w", run.CustomerID, err)
	}

	if customer == nil {
		e.failRun(ctx, run, stepID, fmt.Sprintf("customer %s no longer exists", run.CustomerID))

		return "", nil
	}

	config, err := step.DecodeConfig()
	if err != nil {
		e.appendLog(ctx, run, step, nil, false, err.Error())
		e.failRun(ctx, run, stepID, err.Error())

		return "", nil
	}

	switch cfg := config.(type) {
	case *models.WaitConfig:
		return e.executeWait(ctx, run, automation, step, cfg)
	case *models.WaitForReplyConfig:
		return e.executeWaitForReply(ctx, run, step)
	case *models.BranchConfig:
		return e.executeBranch(ctx, run, step, cfg, customer)
	default:
		return e.executeSideEffect(ctx, run, automation, step, config, customer)
	}
}

func (e *Executor) executeWait(ctx context.Context, run *models.WorkflowRun, automation *models.Automation, step *models.AutomationStep, cfg *models.WaitConfig) (string, error) {
	next := nextStepID(automation, step)
	if next == "" {
		// Nothing to wake up for.
		e.completeRun(ctx, run)

		return "", nil
	}

	// Suspending steps leave no log row; the resumed step's own log is the
	// record that the wait happened.
	run.Pause(step.ID)

	err := e.persistence.UpdateRun(ctx, run)
	if err != nil {
		return "", fmt.Errorf("failed to pause run %s: %w", run.ID, err)
	}

	err = e.scheduler.ScheduleResume(ctx, run.ID, next, cfg.Delay())
	if err != nil {
		// A run paused with no wake-up scheduled would hang forever.
		e.failRun(ctx, run, step.ID, fmt.Sprintf("failed to schedule resume: %v", err))

		return "", nil
	}

	e.publish(ctx, run, events.RunSuspended{
		BaseEvent:  events.NewBaseEvent(events.RunSuspendedEvent, run.AutomationID),
		RunID:      run.ID,
		CustomerID: run.CustomerID,
		StepID:     step.ID,
		Status:     string(models.RunStatusPaused),
	})

	e.logger.InfoContext(ctx, "run paused for wait",
		"run_id", run.ID, "step_id", step.ID, "delay", cfg.Delay())

	return "", nil
}

func (e *Executor) executeWaitForReply(ctx context.Context, run *models.WorkflowRun, step *models.AutomationStep) (string, error) {
	run.AwaitReply(step.ID)

	err := e.persistence.UpdateRun(ctx, run)
	if err != nil {
		return "", fmt.Errorf("failed to suspend run %s: %w", run.ID, err)
	}

	e.publish(ctx, run, events.RunSuspended{
		BaseEvent:  events.NewBaseEvent(events.RunSuspendedEvent, run.AutomationID),
		RunID:      run.ID,
		CustomerID: run.CustomerID,
		StepID:     step.ID,
		Status:     string(models.RunStatusWaiting),
	})

	e.logger.InfoContext(ctx, "run waiting for reply", "run_id", run.ID, "step_id", step.ID)

	return "", nil
}

func (e *Executor) executeBranch(ctx context.Context, run *models.WorkflowRun, step *models.AutomationStep, cfg *models.BranchConfig, customer *models.Customer) (string, error) {
	result := EvaluateCondition(cfg, customer)

	target := step.ConditionFalse
	if result {
		target = step.ConditionTrue
	}

	// The branch decision itself leaves no log row; the chosen step's log is
	// the audit record.
	if target == nil || *target == "" {
		// No edge for this outcome. The run stays where it is until the
		// automation is fixed or the run is resumed manually.
		e.logger.WarnContext(ctx, "branch has no target for outcome",
			"run_id", run.ID, "step_id", step.ID, "result", result)

		err := e.persistence.UpdateRun(ctx, run)
		if err != nil {
			return "", fmt.Errorf("failed to update run %s: %w", run.ID, err)
		}

		return "", nil
	}

	run.CurrentStepID = *target

	err := e.persistence.UpdateRun(ctx, run)
	if err != nil {
		return "", fmt.Errorf("failed to advance run %s: %w", run.ID, err)
	}

	return *target, nil
}

func (e *Executor) executeSideEffect(ctx context.Context, run *models.WorkflowRun, automation *models.Automation, step *models.AutomationStep, config any, customer *models.Customer) (string, error) {
	output, err := e.performSideEffect(ctx, step, config, customer)
	if err != nil {
		e.appendLog(ctx, run, step, nil, false, err.Error())
		e.failRun(ctx, run, step.ID, err.Error())

		return "", nil
	}

	e.appendLog(ctx, run, step, output, true, "")

	if step.Type == models.StepNotifyAdmin {
		message, _ := output["message"].(string)
		e.publish(ctx, run, events.AdminNotified{
			BaseEvent:  events.NewBaseEvent(events.AdminNotifiedEvent, run.AutomationID),
			RunID:      run.ID,
			CustomerID: run.CustomerID,
			Message:    message,
		})
	}

	next := nextStepID(automation, step)
	if next == "" {
		e.completeRun(ctx, run)

		return "", nil
	}

	run.CurrentStepID = next

	err = e.persistence.UpdateRun(ctx, run)
	if err != nil {
		return "", fmt.Errorf("failed to advance run %s: %w", run.ID, err)
	}

	return next, nil
}

func (e *Executor) performSideEffect(ctx context.Context, step *models.AutomationStep, config any, customer *models.Customer) (map[string]any, error) {
	switch cfg := config.(type) {
	case *models.SendTextConfig:
		return e.sendText(ctx, customer, cfg)
	case *models.SendTemplateConfig:
		return e.sendTemplate(ctx, customer, cfg)
	case *models.AddTagConfig:
		return e.addTag(ctx, customer, cfg)
	case *models.ChangeStageConfig:
		return e.changeStage(ctx, customer, cfg)
	case *models.AIAnalyzeConfig:
		return e.analyze(ctx, customer)
	case *models.NotifyAdminConfig:
		return e.notifyAdmin(ctx, customer, cfg)
	case *models.ScheduleCallConfig:
		return e.scheduleCall(ctx, customer, cfg)
	default:
		return nil, fmt.Errorf("step %s: unsupported step type %q", step.ID, step.Type)
	}
}

func (e *Executor) sendText(ctx context.Context, customer *models.Customer, cfg *models.SendTextConfig) (map[string]any, error) {
	text := template.Substitute(cfg.Text, customer)

	messageID, err := e.messenger.SendText(ctx, customer.Phone, text)
	if err != nil {
		return nil, fmt.Errorf("failed to send text: %w", err)
	}

	err = e.persistence.CreateMessage(ctx, &models.Message{
		CustomerID:    customer.ID,
		Direction:     models.MessageOutbound,
		Type:          models.MessageTypeText,
		Content:       text,
		WhatsAppMsgID: messageID,
		Status:        models.MessageStatusSent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record message: %w", err)
	}

	return map[string]any{"messageId": messageID, "text": text}, nil
}

func (e *Executor) sendTemplate(ctx context.Context, customer *models.Customer, cfg *models.SendTemplateConfig) (map[string]any, error) {
	params := make([]string, 0, len(cfg.Params))
	for _, param := range cfg.Params {
		params = append(params, template.Substitute(param, customer))
	}

	messageID, err := e.messenger.SendTemplate(ctx, customer.Phone, cfg.TemplateName, cfg.Language, params)
	if err != nil {
		return nil, fmt.Errorf("failed to send template: %w", err)
	}

	err = e.persistence.CreateMessage(ctx, &models.Message{
		CustomerID:    customer.ID,
		Direction:     models.MessageOutbound,
		Type:          models.MessageTypeTemplate,
		TemplateName:  cfg.TemplateName,
		WhatsAppMsgID: messageID,
		Status:        models.MessageStatusSent,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record message: %w", err)
	}

	return map[string]any{"messageId": messageID, "template": cfg.TemplateName}, nil
}

func (e *Executor) addTag(ctx context.Context, customer *models.Customer, cfg *models.AddTagConfig) (map[string]any, error) {
	tag, err := e.persistence.UpsertTagByName(ctx, cfg.TagName, false)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert tag: %w", err)
	}

	err = e.persistence.TagCustomer(ctx, customer.ID, tag.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to tag customer: %w", err)
	}

	err = e.persistence.CreateActivity(ctx, &models.Activity{
		CustomerID:  customer.ID,
		Type:        models.ActivityTagAdded,
		Description: fmt.Sprintf("Tagged %q by automation", cfg.TagName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record activity: %w", err)
	}

	return map[string]any{"tagId": tag.ID, "tagName": tag.Name}, nil
}

func (e *Executor) changeStage(ctx context.Context, customer *models.Customer, cfg *models.ChangeStageConfig) (map[string]any, error) {
	previous := customer.LeadStage

	err := e.persistence.UpdateCustomerStage(ctx, customer.ID, cfg.Stage)
	if err != nil {
		return nil, fmt.Errorf("failed to change stage: %w", err)
	}

	err = e.persistence.CreateActivity(ctx, &models.Activity{
		CustomerID:  customer.ID,
		Type:        models.ActivityStageChanged,
		Description: fmt.Sprintf("Stage changed %s -> %s by automation", previous, cfg.Stage),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record activity: %w", err)
	}

	return map[string]any{"from": string(previous), "to": string(cfg.Stage)}, nil
}

func (e *Executor) analyze(ctx context.Context, customer *models.Customer) (map[string]any, error) {
	// Analysis is advisory. A failed or empty verdict is recorded as output
	// and the run continues.
	result, err := e.analyzer.AnalyzeCustomer(ctx, customer.ID)
	if err != nil {
		e.logger.WarnContext(ctx, "analysis failed", "customer_id", customer.ID, "error", err)

		return map[string]any{"error": err.Error()}, nil
	}

	if result == nil {
		return map[string]any{"error": "no conversation history to analyze"}, nil
	}

	return map[string]any{
		"leadScore":   result.LeadScore,
		"temperature": string(result.Temperature),
		"summary":     result.Summary,
	}, nil
}

func (e *Executor) notifyAdmin(ctx context.Context, customer *models.Customer, cfg *models.NotifyAdminConfig) (map[string]any, error) {
	message := cfg.Message
	if message == "" {
		message = fmt.Sprintf("Automation alert for %s ({{phone}})", customer.Name)
	}

	message = template.Substitute(message, customer)

	output := map[string]any{"message": message}

	if e.adminPhone != "" {
		messageID, err := e.messenger.SendText(ctx, e.adminPhone, message)
		if err != nil {
			return nil, fmt.Errorf("failed to notify admin: %w", err)
		}

		output["messageId"] = messageID
	}

	err := e.persistence.CreateActivity(ctx, &models.Activity{
		CustomerID:  customer.ID,
		Type:        models.ActivityAdminNotification,
		Description: message,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record activity: %w", err)
	}

	return output, nil
}

func (e *Executor) scheduleCall(ctx context.Context, customer *models.Customer, cfg *models.ScheduleCallConfig) (map[string]any, error) {
	scheduledAt := time.Now().UTC().Add(time.Duration(cfg.DelayHours) * time.Hour)

	content := cfg.Notes
	if content == "" {
		content = "Follow up call"
	}

	err := e.persistence.CreateFollowUp(ctx, &models.ScheduledFollowUp{
		CustomerID:  customer.ID,
		Type:        models.FollowUpCallReminder,
		Content:     content,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule call: %w", err)
	}

	return map[string]any{"scheduledAt": scheduledAt.Format(time.RFC3339)}, nil
}

// ResumeForReply wakes every WAITING run of the customer, oldest first, and
// schedules execution of the step after each run's wait-for-reply step.
func (e *Executor) ResumeForReply(ctx context.Context, customerID string) error {
	runs, err := e.persistence.WaitingRunsByCustomer(ctx, customerID)
	if err != nil {
		return fmt.Errorf("failed to load waiting runs: %w", err)
	}

	for _, run := range runs {
		automation, err := e.persistence.AutomationByID(ctx, run.AutomationID)
		if err != nil {
			return fmt.Errorf("failed to load automation %s: %w", run.AutomationID, err)
		}

		if automation == nil {
			e.failRun(ctx, run, run.CurrentStepID, fmt.Sprintf("automation %s no longer exists", run.AutomationID))

			continue
		}

		step := findStep(automation, run.CurrentStepID)
		if step == nil {
			e.completeRun(ctx, run)

			continue
		}

		next := nextStepID(automation, step)
		if next == "" {
			e.completeRun(ctx, run)

			continue
		}

		run.Resume(next)

		err = e.persistence.UpdateRun(ctx, run)
		if err != nil {
			return fmt.Errorf("failed to resume run %s: %w", run.ID, err)
		}

		e.publish(ctx, run, events.RunResumed{
			BaseEvent:  events.NewBaseEvent(events.RunResumedEvent, run.AutomationID),
			RunID:      run.ID,
			CustomerID: run.CustomerID,
			StepID:     next,
		})

		err = e.scheduler.ScheduleResume(ctx, run.ID, next, 0)
		if err != nil {
			return fmt.Errorf("failed to schedule resumed run %s: %w", run.ID, err)
		}

		e.logger.InfoContext(ctx, "run resumed by reply", "run_id", run.ID, "step_id", next)
	}

	return nil
}

func (e *Executor) completeRun(ctx context.Context, run *models.WorkflowRun) {
	now := time.Now().UTC()
	run.Complete(now)

	err := e.persistence.UpdateRun(ctx, run)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to complete run", "run_id", run.ID, "error", err)

		return
	}

	e.publish(ctx, run, events.RunCompleted{
		BaseEvent:  events.NewBaseEvent(events.RunCompletedEvent, run.AutomationID),
		RunID:      run.ID,
		CustomerID: run.CustomerID,
		Duration:   now.Sub(run.StartedAt),
	})

	e.logger.InfoContext(ctx, "run completed", "run_id", run.ID, "automation_id", run.AutomationID)
}

func (e *Executor) failRun(ctx context.Context, run *models.WorkflowRun, stepID, errMsg string) {
	run.Fail(time.Now().UTC(), errMsg)

	err := e.persistence.UpdateRun(ctx, run)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to mark run failed", "run_id", run.ID, "error", err)

		return
	}

	e.publish(ctx, run, events.RunFailed{
		BaseEvent:  events.NewBaseEvent(events.RunFailedEvent, run.AutomationID),
		RunID:      run.ID,
		CustomerID: run.CustomerID,
		StepID:     stepID,
		Error:      errMsg,
	})

	e.logger.WarnContext(ctx, "run failed", "run_id", run.ID, "step_id", stepID, "error", errMsg)
}

func (e *Executor) appendLog(ctx context.Context, run *models.WorkflowRun, step *models.AutomationStep, output map[string]any, success bool, errMsg string) {
	var outputJSON json.RawMessage

	if output != nil {
		raw, err := json.Marshal(output)
		if err == nil {
			outputJSON = raw
		}
	}

	err := e.persistence.AppendRunLog(ctx, &models.WorkflowRunLog{
		RunID:   run.ID,
		StepID:  step.ID,
		Action:  step.Type,
		Input:   step.Config,
		Output:  outputJSON,
		Success: success,
		Error:   errMsg,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to append run log", "run_id", run.ID, "step_id", step.ID, "error", err)
	}
}

func (e *Executor) publish(ctx context.Context, run *models.WorkflowRun, event eventbus.Event) {
	if e.eventBus == nil {
		return
	}

	err := e.eventBus.Publish(ctx, run.AutomationID, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to publish event", "event", event.GetType(), "error", err)
	}
}

func findStep(automation *models.Automation, stepID string) *models.AutomationStep {
	for _, step := range automation.Steps {
		if step.ID == stepID {
			return step
		}
	}

	return nil
}

// nextStepID resolves the successor: an explicit next pointer wins, otherwise
// the next step in order. Empty means the chain ends here.
func nextStepID(automation *models.Automation, step *models.AutomationStep) string {
	if step.NextStepID != nil && *step.NextStepID != "" {
		return *step.NextStepID
	}

	for i, candidate := range automation.Steps {
		if candidate.ID == step.ID {
			if i+1 < len(automation.Steps) {
				return automation.Steps[i+1].ID
			}

			return ""
		}
	}

	return ""
}
