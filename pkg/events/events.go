// Package events defines the lifecycle notifications the automation engine
// publishes as runs move through their state machine.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every automation lifecycle event.
const Topic = "crm.automation.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
	RunSuspendedEvent EventType = "run.suspended"
	RunResumedEvent   EventType = "run.resumed"

	AdminNotifiedEvent EventType = "admin.notified"
)

type BaseEvent struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	AutomationID string    `json:"automation_id"`
	WorkerID     string    `json:"worker_id,omitempty"`
}

// NewBaseEvent creates the shared event envelope.
func NewBaseEvent(eventType EventType, automationID string) BaseEvent {
	id, err := uuid.NewV7()

	eventID := ""
	if err == nil {
		eventID = id.String()
	}

	return BaseEvent{
		ID:           eventID,
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		AutomationID: automationID,
	}
}

type RunStarted struct {
	BaseEvent

	RunID      string `json:"run_id"`
	CustomerID string `json:"customer_id"`
	Trigger    string `json:"trigger"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunCompleted struct {
	BaseEvent

	RunID      string        `json:"run_id"`
	CustomerID string        `json:"customer_id"`
	Duration   time.Duration `json:"duration"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	RunID      string `json:"run_id"`
	CustomerID string `json:"customer_id"`
	StepID     string `json:"step_id"`
	Error      string `json:"error"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

// RunSuspended is published when a run pauses for a timed wait or parks
// waiting for an inbound reply.
type RunSuspended struct {
	BaseEvent

	RunID      string `json:"run_id"`
	CustomerID string `json:"customer_id"`
	StepID     string `json:"step_id"`
	Status     string `json:"status"`
}

func (e RunSuspended) GetType() EventType {
	return RunSuspendedEvent
}

type RunResumed struct {
	BaseEvent

	RunID      string `json:"run_id"`
	CustomerID string `json:"customer_id"`
	StepID     string `json:"step_id"`
}

func (e RunResumed) GetType() EventType {
	return RunResumedEvent
}

// AdminNotified is published when a notify-admin step fires, so dashboards
// can surface the alert without polling the activity table.
type AdminNotified struct {
	BaseEvent

	RunID      string `json:"run_id"`
	CustomerID string `json:"customer_id"`
	Message    string `json:"message"`
}

func (e AdminNotified) GetType() EventType {
	return AdminNotifiedEvent
}
