package workflow

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/persistence/memory"
)

type sentText struct {
	to   string
	text string
}

type sentTemplate struct {
	to       string
	template string
	language string
	params   []string
}

type fakeMessenger struct {
	mu        sync.Mutex
	texts     []sentText
	templates []sentTemplate
	err       error
}

func (m *fakeMessenger) SendText(ctx context.Context, to, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return "", m.err
	}

	m.texts = append(m.texts, sentText{to: to, text: text})

	return "wamid.test", nil
}

func (m *fakeMessenger) SendTemplate(ctx context.Context, to, templateName, language string, params []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return "", m.err
	}

	m.templates = append(m.templates, sentTemplate{to: to, template: templateName, language: language, params: params})

	return "wamid.test", nil
}

type fakeAnalyzer struct {
	result *models.AnalysisResult
	err    error
	calls  int
}

func (a *fakeAnalyzer) AnalyzeCustomer(ctx context.Context, customerID string) (*models.AnalysisResult, error) {
	a.calls++

	return a.result, a.err
}

type scheduledResume struct {
	runID  string
	stepID string
	delay  time.Duration
}

type recordingScheduler struct {
	mu    sync.Mutex
	calls []scheduledResume
	err   error
}

func (s *recordingScheduler) ScheduleResume(ctx context.Context, runID, stepID string, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.calls = append(s.calls, scheduledResume{runID: runID, stepID: stepID, delay: delay})

	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type executorFixture struct {
	persist   *memory.Persistence
	messenger *fakeMessenger
	analyzer  *fakeAnalyzer
	scheduler *recordingScheduler
	executor  *Executor
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()

	persist := memory.NewPersistence()
	messenger := &fakeMessenger{}
	analyzer := &fakeAnalyzer{}
	scheduler := &recordingScheduler{}

	executor := NewExecutor(testLogger(), persist, messenger, analyzer, scheduler, nil, "+19990000000")

	return &executorFixture{
		persist:   persist,
		messenger: messenger,
		analyzer:  analyzer,
		scheduler: scheduler,
		executor:  executor,
	}
}

func (f *executorFixture) saveCustomer(t *testing.T, customer *models.Customer) *models.Customer {
	t.Helper()
	require.NoError(t, f.persist.SaveCustomer(context.Background(), customer))

	return customer
}

func (f *executorFixture) saveAutomation(t *testing.T, automation *models.Automation) *models.Automation {
	t.Helper()
	require.NoError(t, f.persist.SaveAutomation(context.Background(), automation))

	return automation
}

func (f *executorFixture) startRun(t *testing.T, automation *models.Automation, customerID string) *models.WorkflowRun {
	t.Helper()

	run := &models.WorkflowRun{
		AutomationID:  automation.ID,
		CustomerID:    customerID,
		Status:        models.RunStatusRunning,
		CurrentStepID: automation.Steps[0].ID,
	}
	require.NoError(t, f.persist.CreateRun(context.Background(), run))

	return run
}

func (f *executorFixture) reloadRun(t *testing.T, runID string) *models.WorkflowRun {
	t.Helper()

	run, err := f.persist.RunByID(context.Background(), runID)
	require.NoError(t, err)
	require.NotNil(t, run)

	return run
}

func strPtr(s string) *string { return &s }

func TestExecuteStepWalksSequentialChain(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	customer := f.saveCustomer(t, &models.Customer{Name: "Priya", Phone: "+911111111111", LeadStage: models.LeadStageNew})
	automation := f.saveAutomation(t, &models.Automation{
		Name:    "Welcome flow",
		Trigger: models.TriggerCustomerCreated,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "s1", Type: models.StepSendText, Order: 0, Config: json.RawMessage(`{"text":"Hi {{name}}"}`)},
			{ID: "s2", Type: models.StepAddTag, Order: 1, Config: json.RawMessage(`{"tagName":"welcomed"}`)},
			{ID: "s3", Type: models.StepChangeStage, Order: 2, Config: json.RawMessage(`{"stage":"ENGAGED"}`)},
		},
	})

	run := f.startRun(t, automation, customer.ID)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "s1"))

	reloaded := f.reloadRun(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, reloaded.Status)
	require.NotNil(t, reloaded.CompletedAt)

	logs, err := f.persist.RunLogs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, models.StepSendText, logs[0].Action)
	assert.Equal(t, models.StepAddTag, logs[1].Action)
	assert.Equal(t, models.StepChangeStage, logs[2].Action)

	for _, entry := range logs {
		assert.True(t, entry.Success)
	}

	require.Len(t, f.messenger.texts, 1)
	assert.Equal(t, "+911111111111", f.messenger.texts[0].to)
	assert.Equal(t, "Hi Priya", f.messenger.texts[0].text)

	tags, err := f.persist.CustomerTags(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "welcomed", tags[0].Name)

	updated, err := f.persist.CustomerByID(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LeadStageEngaged, updated.LeadStage)
}

func TestExecuteStepPausesOnWait(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	customer := f.saveCustomer(t, &models.Customer{Name: "Arun", Phone: "+912222222222"})
	automation := f.saveAutomation(t, &models.Automation{
		Name:    "Nurture flow",
		Trigger: models.TriggerCustomerCreated,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "s1", Type: models.StepSendText, Order: 0, Config: json.RawMessage(`{"text":"Hello"}`)},
			{ID: "s2", Type: models.StepWait, Order: 1, Config: json.RawMessage(`{"minutes":30}`)},
			{ID: "s3", Type: models.StepAddTag, Order: 2, Config: json.RawMessage(`{"tagName":"nurtured"}`)},
		},
	})

	run := f.startRun(t, automation, customer.ID)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "s1"))

	reloaded := f.reloadRun(t, run.ID)
	assert.Equal(t, models.RunStatusPaused, reloaded.Status)
	assert.Equal(t, "s2", reloaded.CurrentStepID)

	require.Len(t, f.scheduler.calls, 1)
	assert.Equal(t, run.ID, f.scheduler.calls[0].runID)
	assert.Equal(t, "s3", f.scheduler.calls[0].stepID)
	assert.Equal(t, 30*time.Minute, f.scheduler.calls[0].delay)

	// The suspension itself leaves no log row.
	logs, err := f.persist.RunLogs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.StepSendText, logs[0].Action)

	// The wake-up job fires after the delay.
	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "s3"))

	reloaded = f.reloadRun(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, reloaded.Status)

	logs, err = f.persist.RunLogs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.StepAddTag, logs[1].Action)

	tags, err := f.persist.CustomerTags(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "nurtured", tags[0].Name)
}

func TestExecuteStepFailsRunWhenScheduleFails(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)
	f.scheduler.err = assert.AnError

	customer := f.saveCustomer(t, &models.Customer{Name: "Arun", Phone: "+912222222222"})
	automation := f.saveAutomation(t, &models.Automation{
		Name:    "Wait flow",
		Trigger: models.TriggerManual,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "s1", Type: models.StepWait, Order: 0, Config: json.RawMessage(`{"minutes":5}`)},
			{ID: "s2", Type: models.StepAddTag, Order: 1, Config: json.RawMessage(`{"tagName":"later"}`)},
		},
	})

	run := f.startRun(t, automation, customer.ID)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "s1"))

	reloaded := f.reloadRun(t, run.ID)
	assert.Equal(t, models.RunStatusFailed, reloaded.Status)
	assert.Contains(t, reloaded.Error, "failed to schedule resume")
}

func TestExecuteStepWaitsForReplyWithoutTimeout(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	customer := f.saveCustomer(t, &models.Customer{Name: "Meera", Phone: "+913333333333"})
	automation := f.saveAutomation(t, &models.Automation{
		Name:    "Reply flow",
		Trigger: models.TriggerMessageReceived,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "s1", Type: models.StepWaitForReply, Order: 0},
			{ID: "s2", Type: models.StepAddTag, Order: 1, Config: json.RawMessage(`{"tagName":"replied"}`)},
		},
	})

	run := f.startRun(t, automation, customer.ID)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "s1"))

	reloaded := f.reloadRun(t, run.ID)
	assert.Equal(t, models.RunStatusWaiting, reloaded.Status)
	assert.Equal(t, "s1", reloaded.CurrentStepID)
	assert.Empty(t, f.scheduler.calls)

	logs, err := f.persist.RunLogs(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)

	require.NoError(t, f.executor.ResumeForReply(ctx, customer.ID))

	reloaded = f.reloadRun(t, run.ID)
	assert.Equal(t, models.RunStatusRunning, reloaded.Status)
	assert.Equal(t, "s2", reloaded.CurrentStepID)

	require.Len(t, f.scheduler.calls, 1)
	assert.Equal(t, "s2", f.scheduler.calls[0].stepID)
	assert.Equal(t, time.Duration(0), f.scheduler.calls[0].delay)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "s2"))
	assert.Equal(t, models.RunStatusCompleted, f.reloadRun(t, run.ID).Status)
}

func branchAutomation() *models.Automation {
	return &models.Automation{
		Name:    "Scoring branch",
		Trigger: models.TriggerManual,
		Active:  true,
		Steps: []*models.AutomationStep{
			{
				ID: "branch", Type: models.StepConditionalBranch, Order: 0,
				Config:         json.RawMessage(`{"field":"leadScore","operator":"gt","value":50}`),
				ConditionTrue:  strPtr("hot"),
				ConditionFalse: strPtr("cold"),
			},
			{ID: "hot", Type: models.StepAddTag, Order: 1, Config: json.RawMessage(`{"tagName":"hot-lead"}`), NextStepID: strPtr("end")},
			{ID: "cold", Type: models.StepAddTag, Order: 2, Config: json.RawMessage(`{"tagName":"cold-lead"}`)},
			{ID: "end", Type: models.StepChangeStage, Order: 3, Config: json.RawMessage(`{"stage":"NEGOTIATION"}`)},
		},
	}
}

func TestExecuteStepBranchTrueEdge(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	customer := f.saveCustomer(t, &models.Customer{Name: "Hot", Phone: "+914444444444", LeadScore: 70})
	automation := f.saveAutomation(t, branchAutomation())
	run := f.startRun(t, automation, customer.ID)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "branch"))

	assert.Equal(t, models.RunStatusCompleted, f.reloadRun(t, run.ID).Status)

	tags, err := f.persist.CustomerTags(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "hot-lead", tags[0].Name)

	// The branch decision has no log row of its own.
	logs, err := f.persist.RunLogs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.StepAddTag, logs[0].Action)
	assert.Equal(t, models.StepChangeStage, logs[1].Action)
}

func TestExecuteStepBranchFalseEdge(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	customer := f.saveCustomer(t, &models.Customer{Name: "Cold", Phone: "+915555555555", LeadScore: 30})
	automation := f.saveAutomation(t, branchAutomation())
	run := f.startRun(t, automation, customer.ID)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "branch"))

	assert.Equal(t, models.RunStatusCompleted, f.reloadRun(t, run.ID).Status)

	tags, err := f.persist.CustomerTags(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "cold-lead", tags[0].Name)
}

func TestExecuteStepBranchWithoutTargetStalls(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	customer := f.saveCustomer(t, &models.Customer{Name: "Cold", Phone: "+916666666666", LeadScore: 30})
	automation := f.saveAutomation(t, &models.Automation{
		Name:    "Half branch",
		Trigger: models.TriggerManual,
		Active:  true,
		Steps: []*models.AutomationStep{
			{
				ID: "branch", Type: models.StepConditionalBranch, Order: 0,
				Config:        json.RawMessage(`{"field":"leadScore","operator":"gt","value":50}`),
				ConditionTrue: strPtr("hot"),
			},
			{ID: "hot", Type: models.StepAddTag, Order: 1, Config: json.RawMessage(`{"tagName":"hot-lead"}`)},
		},
	})
	run := f.startRun(t, automation, customer.ID)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "branch"))

	reloaded := f.reloadRun(t, run.ID)
	assert.Equal(t, models.RunStatusRunning, reloaded.Status)
	assert.Equal(t, "branch", reloaded.CurrentStepID)

	logs, err := f.persist.RunLogs(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)

	tags, err := f.persist.CustomerTags(ctx, customer.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestExecuteStepBranchStallPersistsResumedStatus(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	customer := f.saveCustomer(t, &models.Customer{Name: "Cold", Phone: "+916666666600", LeadScore: 30})
	automation := f.saveAutomation(t, &models.Automation{
		Name:    "Half branch",
		Trigger: models.TriggerManual,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "wait", Type: models.StepWait, Order: 0, Config: json.RawMessage(`{"minutes":5}`)},
			{
				ID: "branch", Type: models.StepConditionalBranch, Order: 1,
				Config:        json.RawMessage(`{"field":"leadScore","operator":"gt","value":50}`),
				ConditionTrue: strPtr("hot"),
			},
			{ID: "hot", Type: models.StepAddTag, Order: 2, Config: json.RawMessage(`{"tagName":"hot-lead"}`)},
		},
	})

	// A wake-up lands on the branch while the run is still suspended.
	run := &models.WorkflowRun{
		AutomationID:  automation.ID,
		CustomerID:    customer.ID,
		Status:        models.RunStatusPaused,
		CurrentStepID: "wait",
	}
	require.NoError(t, f.persist.CreateRun(ctx, run))

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "branch"))

	reloaded := f.reloadRun(t, run.ID)
	assert.Equal(t, models.RunStatusRunning, reloaded.Status)
	assert.Equal(t, "branch", reloaded.CurrentStepID)
}

func TestExecuteStepFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)
	f.messenger.err = assert.AnError

	customer := f.saveCustomer(t, &models.Customer{Name: "Rahul", Phone: "+917777777777"})
	automation := f.saveAutomation(t, &models.Automation{
		Name:    "Broken flow",
		Trigger: models.TriggerManual,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "s1", Type: models.StepSendText, Order: 0, Config: json.RawMessage(`{"text":"Hi"}`)},
			{ID: "s2", Type: models.StepAddTag, Order: 1, Config: json.RawMessage(`{"tagName":"never"}`)},
		},
	})
	run := f.startRun(t, automation, customer.ID)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "s1"))

	reloaded := f.reloadRun(t, run.ID)
	assert.Equal(t, models.RunStatusFailed, reloaded.Status)
	assert.NotEmpty(t, reloaded.Error)
	require.NotNil(t, reloaded.CompletedAt)

	logs, err := f.persist.RunLogs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
	assert.NotEmpty(t, logs[0].Error)

	// Terminal runs ignore further execution attempts.
	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "s2"))

	logs, err = f.persist.RunLogs(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestExecuteStepDanglingStepCompletesRun(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	customer := f.saveCustomer(t, &models.Customer{Name: "Dev", Phone: "+918888888888"})
	automation := f.saveAutomation(t, &models.Automation{
		Name:    "Edited flow",
		Trigger: models.TriggerManual,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "s1", Type: models.StepAddTag, Order: 0, Config: json.RawMessage(`{"tagName":"kept"}`)},
		},
	})
	run := f.startRun(t, automation, customer.ID)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "deleted-step"))

	assert.Equal(t, models.RunStatusCompleted, f.reloadRun(t, run.ID).Status)
}

func TestExecuteStepInvalidConfigFailsRun(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	customer := f.saveCustomer(t, &models.Customer{Name: "Dev", Phone: "+918888888800"})
	automation := f.saveAutomation(t, &models.Automation{
		Name:    "Misconfigured flow",
		Trigger: models.TriggerManual,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "s1", Type: models.StepSendText, Order: 0, Config: json.RawMessage(`{}`)},
		},
	})
	run := f.startRun(t, automation, customer.ID)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "s1"))

	reloaded := f.reloadRun(t, run.ID)
	assert.Equal(t, models.RunStatusFailed, reloaded.Status)

	logs, err := f.persist.RunLogs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
}

func TestExecuteStepAnalyzeAbsorbsEmptyVerdict(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	customer := f.saveCustomer(t, &models.Customer{Name: "Quiet", Phone: "+919999999999"})
	automation := f.saveAutomation(t, &models.Automation{
		Name:    "Analyze flow",
		Trigger: models.TriggerManual,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "s1", Type: models.StepAIAnalyze, Order: 0},
		},
	})
	run := f.startRun(t, automation, customer.ID)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "s1"))

	assert.Equal(t, models.RunStatusCompleted, f.reloadRun(t, run.ID).Status)
	assert.Equal(t, 1, f.analyzer.calls)

	logs, err := f.persist.RunLogs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.Contains(t, string(logs[0].Output), "no conversation history")
}

func TestExecuteStepAnalyzeAbsorbsAnalyzerError(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)
	f.analyzer.err = assert.AnError

	customer := f.saveCustomer(t, &models.Customer{Name: "Flaky", Phone: "+919999999900"})
	automation := f.saveAutomation(t, &models.Automation{
		Name:    "Analyze flow",
		Trigger: models.TriggerManual,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "s1", Type: models.StepAIAnalyze, Order: 0},
			{ID: "s2", Type: models.StepAddTag, Order: 1, Config: json.RawMessage(`{"tagName":"scored"}`)},
		},
	})
	run := f.startRun(t, automation, customer.ID)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "s1"))

	assert.Equal(t, models.RunStatusCompleted, f.reloadRun(t, run.ID).Status)

	logs, err := f.persist.RunLogs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.True(t, logs[0].Success)
	assert.Contains(t, string(logs[0].Output), "error")

	tags, err := f.persist.CustomerTags(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "scored", tags[0].Name)
}

func TestExecuteStepScheduleCall(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	customer := f.saveCustomer(t, &models.Customer{Name: "Busy", Phone: "+910000000001"})
	automation := f.saveAutomation(t, &models.Automation{
		Name:    "Call flow",
		Trigger: models.TriggerManual,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "s1", Type: models.StepScheduleCall, Order: 0, Config: json.RawMessage(`{"notes":"discuss pricing","delayHours":2}`)},
		},
	})
	run := f.startRun(t, automation, customer.ID)

	before := time.Now().UTC()
	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "s1"))

	followUps := f.persist.FollowUps()
	require.Len(t, followUps, 1)
	assert.Equal(t, models.FollowUpCallReminder, followUps[0].Type)
	assert.Equal(t, "discuss pricing", followUps[0].Content)
	assert.WithinDuration(t, before.Add(2*time.Hour), followUps[0].ScheduledAt, time.Minute)
}

func TestExecuteStepScheduleCallDefaultsContent(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	customer := f.saveCustomer(t, &models.Customer{Name: "Busy", Phone: "+910000000011"})
	automation := f.saveAutomation(t, &models.Automation{
		Name:    "Call flow",
		Trigger: models.TriggerManual,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "s1", Type: models.StepScheduleCall, Order: 0, Config: json.RawMessage(`{}`)},
		},
	})
	run := f.startRun(t, automation, customer.ID)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "s1"))

	followUps := f.persist.FollowUps()
	require.Len(t, followUps, 1)
	assert.Equal(t, "Follow up call", followUps[0].Content)
}

func TestExecuteStepNotifyAdmin(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	customer := f.saveCustomer(t, &models.Customer{Name: "Lead", Phone: "+910000000002"})
	automation := f.saveAutomation(t, &models.Automation{
		Name:    "Alert flow",
		Trigger: models.TriggerManual,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "s1", Type: models.StepNotifyAdmin, Order: 0, Config: json.RawMessage(`{"message":"Check on {{name}}"}`)},
		},
	})
	run := f.startRun(t, automation, customer.ID)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "s1"))

	require.Len(t, f.messenger.texts, 1)
	assert.Equal(t, "+19990000000", f.messenger.texts[0].to)
	assert.Equal(t, "Check on Lead", f.messenger.texts[0].text)

	activities := f.persist.Activities()
	require.Len(t, activities, 1)
	assert.Equal(t, models.ActivityAdminNotification, activities[0].Type)
}

func TestExecuteStepSendTemplateSubstitutesParams(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	customer := f.saveCustomer(t, &models.Customer{Name: "Priya", Phone: "+910000000003"})
	automation := f.saveAutomation(t, &models.Automation{
		Name:    "Template flow",
		Trigger: models.TriggerManual,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "s1", Type: models.StepSendTemplate, Order: 0, Config: json.RawMessage(`{"templateName":"welcome","params":["{{name}}"]}`)},
		},
	})
	run := f.startRun(t, automation, customer.ID)

	require.NoError(t, f.executor.ExecuteStep(ctx, run.ID, "s1"))

	require.Len(t, f.messenger.templates, 1)
	assert.Equal(t, "welcome", f.messenger.templates[0].template)
	assert.Equal(t, "en", f.messenger.templates[0].language)
	assert.Equal(t, []string{"Priya"}, f.messenger.templates[0].params)

	messages, err := f.persist.RecentMessages(ctx, customer.ID, 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, models.MessageTypeTemplate, messages[0].Type)
}
