package models

import (
	"encoding/json"
	"time"
)

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusPaused    RunStatus = "PAUSED"
	RunStatusWaiting   RunStatus = "WAITING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// ActiveRunStatuses are the states in which a run still owns its
// (automation, customer) slot; at most one such run may exist per pair.
var ActiveRunStatuses = []RunStatus{RunStatusRunning, RunStatusPaused, RunStatusWaiting}

// Terminal reports whether no further step execution is valid for s.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// WorkflowRun is one execution of one automation against one customer.
// Context captures the trigger payload at creation time and is never updated.
type WorkflowRun struct {
	ID            string          `json:"id"`
	AutomationID  string          `json:"automation_id"`
	CustomerID    string          `json:"customer_id"`
	Status        RunStatus       `json:"status"`
	CurrentStepID string          `json:"current_step_id"`
	Context       json.RawMessage `json:"context,omitempty"`
	Error         string          `json:"error,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// Pause suspends the run at step for a timed wait.
func (r *WorkflowRun) Pause(stepID string) {
	r.Status = RunStatusPaused
	r.CurrentStepID = stepID
}

// AwaitReply suspends the run at step until an inbound message resumes it.
func (r *WorkflowRun) AwaitReply(stepID string) {
	r.Status = RunStatusWaiting
	r.CurrentStepID = stepID
}

// Resume puts a suspended run back to RUNNING at the given step.
func (r *WorkflowRun) Resume(stepID string) {
	r.Status = RunStatusRunning
	r.CurrentStepID = stepID
}

// Complete marks the run terminally successful.
func (r *WorkflowRun) Complete(now time.Time) {
	r.Status = RunStatusCompleted
	r.CompletedAt = &now
}

// Fail marks the run terminally failed with the given error message.
func (r *WorkflowRun) Fail(now time.Time, errMsg string) {
	r.Status = RunStatusFailed
	r.Error = errMsg
	r.CompletedAt = &now
}

// WorkflowRunLog is an append-only record of one step execution attempt. The
// engine writes each entry exactly once and never revisits it.
type WorkflowRunLog struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	StepID     string          `json:"step_id"`
	Action     StepType        `json:"action"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}
