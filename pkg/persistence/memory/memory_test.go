package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/persistence"
)

func TestCreateRunRejectsDuplicateActiveRun(t *testing.T) {
	ctx := context.Background()
	persist := NewPersistence()

	first := &models.WorkflowRun{AutomationID: "a1", CustomerID: "c1", Status: models.RunStatusRunning}
	require.NoError(t, persist.CreateRun(ctx, first))

	for _, status := range models.ActiveRunStatuses {
		first.Status = status
		require.NoError(t, persist.UpdateRun(ctx, first))

		duplicate := &models.WorkflowRun{AutomationID: "a1", CustomerID: "c1", Status: models.RunStatusRunning}
		err := persist.CreateRun(ctx, duplicate)
		assert.ErrorIs(t, err, persistence.ErrDuplicateActiveRun, string(status))
	}

	// A terminal run frees the slot.
	first.Complete(time.Now().UTC())
	require.NoError(t, persist.UpdateRun(ctx, first))

	second := &models.WorkflowRun{AutomationID: "a1", CustomerID: "c1", Status: models.RunStatusRunning}
	assert.NoError(t, persist.CreateRun(ctx, second))
}

func TestCreateRunAllowsOtherPairs(t *testing.T) {
	ctx := context.Background()
	persist := NewPersistence()

	require.NoError(t, persist.CreateRun(ctx, &models.WorkflowRun{AutomationID: "a1", CustomerID: "c1", Status: models.RunStatusRunning}))
	assert.NoError(t, persist.CreateRun(ctx, &models.WorkflowRun{AutomationID: "a1", CustomerID: "c2", Status: models.RunStatusRunning}))
	assert.NoError(t, persist.CreateRun(ctx, &models.WorkflowRun{AutomationID: "a2", CustomerID: "c1", Status: models.RunStatusRunning}))
}

func TestWaitingRunsByCustomerOldestFirst(t *testing.T) {
	ctx := context.Background()
	persist := NewPersistence()

	older := &models.WorkflowRun{
		AutomationID: "a1", CustomerID: "c1",
		Status:    models.RunStatusWaiting,
		StartedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	require.NoError(t, persist.CreateRun(ctx, older))

	newer := &models.WorkflowRun{
		AutomationID: "a2", CustomerID: "c1",
		Status:    models.RunStatusWaiting,
		StartedAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, persist.CreateRun(ctx, newer))

	notWaiting := &models.WorkflowRun{AutomationID: "a3", CustomerID: "c1", Status: models.RunStatusRunning}
	require.NoError(t, persist.CreateRun(ctx, notWaiting))

	runs, err := persist.WaitingRunsByCustomer(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, older.ID, runs[0].ID)
	assert.Equal(t, newer.ID, runs[1].ID)
}

func TestSaveAutomationOrdersSteps(t *testing.T) {
	ctx := context.Background()
	persist := NewPersistence()

	automation := &models.Automation{
		Name:    "Flow",
		Trigger: models.TriggerManual,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "s2", Type: models.StepWaitForReply, Order: 1},
			{ID: "s1", Type: models.StepAIAnalyze, Order: 0},
		},
	}
	require.NoError(t, persist.SaveAutomation(ctx, automation))

	loaded, err := persist.AutomationByID(ctx, automation.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.Steps, 2)
	assert.Equal(t, "s1", loaded.Steps[0].ID)
	assert.Equal(t, "s2", loaded.Steps[1].ID)
}

func TestRunLogsPreserveAppendOrder(t *testing.T) {
	ctx := context.Background()
	persist := NewPersistence()

	for _, stepID := range []string{"s1", "s2", "s3"} {
		require.NoError(t, persist.AppendRunLog(ctx, &models.WorkflowRunLog{
			RunID:   "r1",
			StepID:  stepID,
			Action:  models.StepSendText,
			Success: true,
		}))
	}

	logs, err := persist.RunLogs(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "s1", logs[0].StepID)
	assert.Equal(t, "s2", logs[1].StepID)
	assert.Equal(t, "s3", logs[2].StepID)
}

func TestUpsertTagByNameReturnsExistingTag(t *testing.T) {
	ctx := context.Background()
	persist := NewPersistence()

	first, err := persist.UpsertTagByName(ctx, "vip", false)
	require.NoError(t, err)

	second, err := persist.UpsertTagByName(ctx, "vip", true)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.False(t, second.IsAIGenerated)
}

func TestRecentMessagesNewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	persist := NewPersistence()

	for _, content := range []string{"first", "second", "third"} {
		require.NoError(t, persist.CreateMessage(ctx, &models.Message{
			CustomerID: "c1",
			Direction:  models.MessageInbound,
			Type:       models.MessageTypeText,
			Content:    content,
		}))
	}

	messages, err := persist.RecentMessages(ctx, "c1", 2)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "third", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
}
