// Package workflow implements the automation engine: trigger dispatch, step
// execution and run state management.
package workflow

import "github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"

// Queue names.
const (
	QueueAutomation = "automation"
	QueueAIAnalysis = "ai-analysis"
)

// Job names.
const (
	JobTrigger     = "trigger"
	JobExecuteStep = "execute-step"
	JobAnalyze     = "analyze"
)

// TriggerJob asks the dispatcher to start matching automations for a
// customer. AutomationID narrows a MANUAL trigger to one automation.
type TriggerJob struct {
	Trigger      models.TriggerKind `json:"trigger"`
	CustomerID   string             `json:"customerId"`
	AutomationID string             `json:"automationId,omitempty"`
	Data         map[string]any     `json:"data,omitempty"`
}

// ExecuteStepJob asks the executor to run one step of a run.
type ExecuteStepJob struct {
	RunID  string `json:"runId"`
	StepID string `json:"stepId"`
}

// AnalyzeJob asks the AI worker to score a customer's conversation.
type AnalyzeJob struct {
	CustomerID string `json:"customerId"`
}
