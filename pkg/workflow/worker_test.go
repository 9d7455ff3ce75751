package workflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/persistence/memory"
	queuememory "github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/queue/memory"
)

// Exercises the full loop: an inbound message resumes a parked run and starts
// a fresh run for the matching automation, both driven through the queue.
func TestWorkerHandlesInboundMessage(t *testing.T) {
	ctx := context.Background()
	persist := memory.NewPersistence()
	jobQueue := queuememory.NewQueue(testLogger())
	messenger := &fakeMessenger{}
	analyzer := &fakeAnalyzer{}

	dispatcher := NewDispatcher(testLogger(), persist, jobQueue, nil)
	executor := NewExecutor(testLogger(), persist, messenger, analyzer, NewQueueStepScheduler(jobQueue), nil, "")
	worker := NewWorker(testLogger(), jobQueue, dispatcher, executor, analyzer)

	customer := &models.Customer{Name: "Priya", Phone: "+911111111111"}
	require.NoError(t, persist.SaveCustomer(ctx, customer))

	onMessage := &models.Automation{
		Name:    "On message",
		Trigger: models.TriggerMessageReceived,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "m1", Type: models.StepAddTag, Order: 0, Config: json.RawMessage(`{"tagName":"messaged"}`)},
		},
	}
	require.NoError(t, persist.SaveAutomation(ctx, onMessage))

	parked := &models.Automation{
		Name:    "Awaiting reply",
		Trigger: models.TriggerCustomerCreated,
		Active:  true,
		Steps: []*models.AutomationStep{
			{ID: "w1", Type: models.StepWaitForReply, Order: 0},
			{ID: "w2", Type: models.StepAddTag, Order: 1, Config: json.RawMessage(`{"tagName":"replied"}`)},
		},
	}
	require.NoError(t, persist.SaveAutomation(ctx, parked))

	waitingRun := &models.WorkflowRun{
		AutomationID:  parked.ID,
		CustomerID:    customer.ID,
		Status:        models.RunStatusWaiting,
		CurrentStepID: "w1",
	}
	require.NoError(t, persist.CreateRun(ctx, waitingRun))

	require.NoError(t, worker.Start(ctx))
	defer func() { require.NoError(t, jobQueue.Close()) }()

	require.NoError(t, jobQueue.Enqueue(ctx, QueueAutomation, JobTrigger, TriggerJob{
		Trigger:    models.TriggerMessageReceived,
		CustomerID: customer.ID,
	}))

	assert.Eventually(t, func() bool {
		resumed, err := persist.RunByID(ctx, waitingRun.ID)
		if err != nil || resumed == nil || resumed.Status != models.RunStatusCompleted {
			return false
		}

		started, err := persist.ActiveRun(ctx, onMessage.ID, customer.ID)
		if err != nil || started != nil {
			// The fresh run should already have completed.
			return false
		}

		tags, err := persist.CustomerTags(ctx, customer.ID)
		if err != nil {
			return false
		}

		return len(tags) == 2
	}, 3*time.Second, 20*time.Millisecond)
}
