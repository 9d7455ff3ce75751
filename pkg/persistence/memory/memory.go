// Package memory provides an in-memory persistence implementation used by
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/models"
	"github.com/pacpltradingdesk-dotcom/indicator-crm/pkg/persistence"
)

// Persistence keeps all records in process memory behind one mutex. It
// enforces the same single-active-run rule the postgres partial index does.
type Persistence struct {
	mu          sync.RWMutex
	automations map[string]*models.Automation
	runs        map[string]*models.WorkflowRun
	runLogs     map[string][]*models.WorkflowRunLog
	customers   map[string]*models.Customer
	messages    map[string][]*models.Message
	tags        map[string]*models.Tag
	tagsByName  map[string]string
	customerTag map[string]map[string]bool
	followUps   []*models.ScheduledFollowUp
	activities  []*models.Activity
}

// NewPersistence creates an empty in-memory persistence layer.
func NewPersistence() *Persistence {
	return &Persistence{
		automations: make(map[string]*models.Automation),
		runs:        make(map[string]*models.WorkflowRun),
		runLogs:     make(map[string][]*models.WorkflowRunLog),
		customers:   make(map[string]*models.Customer),
		messages:    make(map[string][]*models.Message),
		tags:        make(map[string]*models.Tag),
		tagsByName:  make(map[string]string),
		customerTag: make(map[string]map[string]bool),
	}
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate ID: %w", err)
	}

	return id.String(), nil
}

func (p *Persistence) ActiveAutomationsByTrigger(ctx context.Context, trigger models.TriggerKind) ([]*models.Automation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	automations := make([]*models.Automation, 0)

	for _, automation := range p.automations {
		if automation.Active && automation.Trigger == trigger {
			automations = append(automations, cloneAutomation(automation))
		}
	}

	sort.Slice(automations, func(i, j int) bool {
		return automations[i].CreatedAt.Before(automations[j].CreatedAt)
	})

	return automations, nil
}

func (p *Persistence) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	automation, ok := p.automations[id]
	if !ok {
		return nil, nil
	}

	return cloneAutomation(automation), nil
}

func (p *Persistence) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()

	if automation.CreatedAt.IsZero() {
		automation.CreatedAt = now
	}

	automation.UpdatedAt = now

	if automation.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		automation.ID = id
	}

	for _, step := range automation.Steps {
		if step.ID == "" {
			id, err := newID()
			if err != nil {
				return err
			}

			step.ID = id
		}

		step.AutomationID = automation.ID
	}

	p.automations[automation.ID] = cloneAutomation(automation)

	return nil
}

func (p *Persistence) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, existing := range p.runs {
		if existing.AutomationID == run.AutomationID &&
			existing.CustomerID == run.CustomerID &&
			!existing.Status.Terminal() {
			return persistence.ErrDuplicateActiveRun
		}
	}

	if run.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		run.ID = id
	}

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}

	p.runs[run.ID] = cloneRun(run)

	return nil
}

func (p *Persistence) RunByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	run, ok := p.runs[id]
	if !ok {
		return nil, nil
	}

	return cloneRun(run), nil
}

func (p *Persistence) UpdateRun(ctx context.Context, run *models.WorkflowRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.runs[run.ID]; !ok {
		return fmt.Errorf("run %s not found", run.ID)
	}

	p.runs[run.ID] = cloneRun(run)

	return nil
}

func (p *Persistence) ActiveRun(ctx context.Context, automationID, customerID string) (*models.WorkflowRun, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, run := range p.runs {
		if run.AutomationID == automationID &&
			run.CustomerID == customerID &&
			!run.Status.Terminal() {
			return cloneRun(run), nil
		}
	}

	return nil, nil
}

func (p *Persistence) WaitingRunsByCustomer(ctx context.Context, customerID string) ([]*models.WorkflowRun, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	runs := make([]*models.WorkflowRun, 0)

	for _, run := range p.runs {
		if run.CustomerID == customerID && run.Status == models.RunStatusWaiting {
			runs = append(runs, cloneRun(run))
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})

	return runs, nil
}

func (p *Persistence) AppendRunLog(ctx context.Context, entry *models.WorkflowRunLog) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		entry.ID = id
	}

	if entry.ExecutedAt.IsZero() {
		entry.ExecutedAt = time.Now().UTC()
	}

	clone := *entry
	p.runLogs[entry.RunID] = append(p.runLogs[entry.RunID], &clone)

	return nil
}

func (p *Persistence) RunLogs(ctx context.Context, runID string) ([]*models.WorkflowRunLog, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	logs := make([]*models.WorkflowRunLog, 0, len(p.runLogs[runID]))

	for _, entry := range p.runLogs[runID] {
		clone := *entry
		logs = append(logs, &clone)
	}

	return logs, nil
}

func (p *Persistence) CustomerByID(ctx context.Context, id string) (*models.Customer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	customer, ok := p.customers[id]
	if !ok {
		return nil, nil
	}

	clone := *customer

	return &clone, nil
}

func (p *Persistence) SaveCustomer(ctx context.Context, customer *models.Customer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()

	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}

	customer.UpdatedAt = now

	if customer.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		customer.ID = id
	}

	clone := *customer
	p.customers[customer.ID] = &clone

	return nil
}

func (p *Persistence) UpdateCustomerStage(ctx context.Context, customerID string, stage models.LeadStage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	customer, ok := p.customers[customerID]
	if !ok {
		return fmt.Errorf("customer %s not found", customerID)
	}

	customer.LeadStage = stage
	customer.UpdatedAt = time.Now().UTC()

	return nil
}

func (p *Persistence) ListCustomers(ctx context.Context) ([]*models.Customer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	customers := make([]*models.Customer, 0, len(p.customers))

	for _, customer := range p.customers {
		clone := *customer
		customers = append(customers, &clone)
	}

	sort.Slice(customers, func(i, j int) bool {
		return customers[i].CreatedAt.Before(customers[j].CreatedAt)
	})

	return customers, nil
}

func (p *Persistence) CreateMessage(ctx context.Context, message *models.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if message.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		message.ID = id
	}

	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	clone := *message
	p.messages[message.CustomerID] = append(p.messages[message.CustomerID], &clone)

	return nil
}

func (p *Persistence) RecentMessages(ctx context.Context, customerID string, limit int) ([]*models.Message, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	all := p.messages[customerID]

	messages := make([]*models.Message, 0, len(all))

	for i := len(all) - 1; i >= 0 && len(messages) < limit; i-- {
		clone := *all[i]
		messages = append(messages, &clone)
	}

	return messages, nil
}

func (p *Persistence) UpsertTagByName(ctx context.Context, name string, aiGenerated bool) (*models.Tag, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.tagsByName[name]; ok {
		clone := *p.tags[id]

		return &clone, nil
	}

	id, err := newID()
	if err != nil {
		return nil, err
	}

	tag := &models.Tag{
		ID:            id,
		Name:          name,
		IsAIGenerated: aiGenerated,
		CreatedAt:     time.Now().UTC(),
	}

	p.tags[id] = tag
	p.tagsByName[name] = id

	clone := *tag

	return &clone, nil
}

func (p *Persistence) TagCustomer(ctx context.Context, customerID, tagID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.customerTag[customerID] == nil {
		p.customerTag[customerID] = make(map[string]bool)
	}

	p.customerTag[customerID][tagID] = true

	return nil
}

func (p *Persistence) CustomerTags(ctx context.Context, customerID string) ([]*models.Tag, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tags := make([]*models.Tag, 0)

	for tagID := range p.customerTag[customerID] {
		if tag, ok := p.tags[tagID]; ok {
			clone := *tag
			tags = append(tags, &clone)
		}
	}

	sort.Slice(tags, func(i, j int) bool {
		return tags[i].Name < tags[j].Name
	})

	return tags, nil
}

func (p *Persistence) CreateFollowUp(ctx context.Context, followUp *models.ScheduledFollowUp) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if followUp.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		followUp.ID = id
	}

	if followUp.CreatedAt.IsZero() {
		followUp.CreatedAt = time.Now().UTC()
	}

	clone := *followUp
	p.followUps = append(p.followUps, &clone)

	return nil
}

func (p *Persistence) CreateActivity(ctx context.Context, activity *models.Activity) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if activity.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}

		activity.ID = id
	}

	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}

	clone := *activity
	p.activities = append(p.activities, &clone)

	return nil
}

// FollowUps returns every scheduled follow-up, useful in tests.
func (p *Persistence) FollowUps() []*models.ScheduledFollowUp {
	p.mu.RLock()
	defer p.mu.RUnlock()

	followUps := make([]*models.ScheduledFollowUp, 0, len(p.followUps))

	for _, followUp := range p.followUps {
		clone := *followUp
		followUps = append(followUps, &clone)
	}

	return followUps
}

// Activities returns every recorded activity, useful in tests.
func (p *Persistence) Activities() []*models.Activity {
	p.mu.RLock()
	defer p.mu.RUnlock()

	activities := make([]*models.Activity, 0, len(p.activities))

	for _, activity := range p.activities {
		clone := *activity
		activities = append(activities, &clone)
	}

	return activities
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return nil
}

func (p *Persistence) Close(ctx context.Context) error {
	return nil
}

func cloneAutomation(automation *models.Automation) *models.Automation {
	clone := *automation
	clone.Steps = make([]*models.AutomationStep, 0, len(automation.Steps))

	for _, step := range automation.Steps {
		stepClone := *step
		clone.Steps = append(clone.Steps, &stepClone)
	}

	sort.Slice(clone.Steps, func(i, j int) bool {
		return clone.Steps[i].Order < clone.Steps[j].Order
	})

	return &clone
}

func cloneRun(run *models.WorkflowRun) *models.WorkflowRun {
	clone := *run

	return &clone
}
