package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// TriggerKind is the business event an automation reacts to.
type TriggerKind string

const (
	TriggerCustomerCreated TriggerKind = "CUSTOMER_CREATED"
	TriggerPaymentReceived TriggerKind = "PAYMENT_RECEIVED"
	TriggerMessageReceived TriggerKind = "MESSAGE_RECEIVED"
	TriggerStageChanged    TriggerKind = "STAGE_CHANGED"
	TriggerScheduled       TriggerKind = "SCHEDULED"
	TriggerTagAdded        TriggerKind = "TAG_ADDED"
	TriggerManual          TriggerKind = "MANUAL"
)

// StepType identifies the kind of work an automation step performs.
type StepType string

const (
	StepSendText          StepType = "SEND_TEXT"
	StepSendTemplate      StepType = "SEND_TEMPLATE"
	StepWait              StepType = "WAIT"
	StepWaitForReply      StepType = "WAIT_FOR_REPLY"
	StepAddTag            StepType = "ADD_TAG"
	StepChangeStage       StepType = "CHANGE_STAGE"
	StepAIAnalyze         StepType = "AI_ANALYZE"
	StepNotifyAdmin       StepType = "NOTIFY_ADMIN"
	StepScheduleCall      StepType = "SCHEDULE_CALL"
	StepConditionalBranch StepType = "CONDITIONAL_BRANCH"
)

// Automation is a named, triggerable definition of an ordered step sequence.
type Automation struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"           validate:"required,min=1,max=200"`
	Description   string            `json:"description,omitempty"`
	Trigger       TriggerKind       `json:"trigger"        validate:"required"`
	TriggerConfig json.RawMessage   `json:"trigger_config,omitempty"`
	Active        bool              `json:"active"`
	Steps         []*AutomationStep `json:"steps"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ScheduleConfig is the trigger config blob of SCHEDULED automations.
type ScheduleConfig struct {
	Cron string `json:"cron"`
}

// DefaultScheduleCron is used when a SCHEDULED automation carries no cron
// expression: every day at 09:00.
const DefaultScheduleCron = "0 9 * * *"

// ScheduleCron returns the cron expression of a SCHEDULED automation.
func (a *Automation) ScheduleCron() string {
	var cfg ScheduleConfig
	if len(a.TriggerConfig) > 0 {
		if err := json.Unmarshal(a.TriggerConfig, &cfg); err == nil && cfg.Cron != "" {
			return cfg.Cron
		}
	}

	return DefaultScheduleCron
}

// AutomationStep is one unit of work within an automation. Config carries the
// raw type-specific payload; DecodeConfig turns it into the typed form.
type AutomationStep struct {
	ID             string          `json:"id"`
	AutomationID   string          `json:"automation_id"`
	Type           StepType        `json:"type"  validate:"required"`
	Config         json.RawMessage `json:"config,omitempty"`
	Order          int             `json:"order"`
	NextStepID     *string         `json:"next_step_id,omitempty"`
	ConditionTrue  *string         `json:"condition_true,omitempty"`
	ConditionFalse *string         `json:"condition_false,omitempty"`
}

// Per-type step configurations. The executor switches exhaustively over these
// instead of poking at an untyped blob.

type SendTextConfig struct {
	Text string `json:"text" validate:"required"`
}

type SendTemplateConfig struct {
	TemplateName string   `json:"templateName" validate:"required"`
	Language     string   `json:"language"`
	Params       []string `json:"params,omitempty"`
}

type WaitConfig struct {
	Days    int `json:"days"    validate:"min=0"`
	Hours   int `json:"hours"   validate:"min=0"`
	Minutes int `json:"minutes" validate:"min=0"`
}

// Delay is the total wait duration; zero config means no delay.
func (c WaitConfig) Delay() time.Duration {
	return time.Duration(c.Days)*24*time.Hour +
		time.Duration(c.Hours)*time.Hour +
		time.Duration(c.Minutes)*time.Minute
}

type WaitForReplyConfig struct{}

type AddTagConfig struct {
	TagName string `json:"tagName" validate:"required"`
}

type ChangeStageConfig struct {
	Stage LeadStage `json:"stage" validate:"required,oneof=NEW ENGAGED INTERESTED NEGOTIATION CONVERTED CHURNED"`
}

type AIAnalyzeConfig struct{}

type NotifyAdminConfig struct {
	Message string `json:"message"`
}

type ScheduleCallConfig struct {
	Notes      string `json:"notes"`
	DelayHours int    `json:"delayHours" validate:"min=0"`
}

// BranchOperator is the comparison applied by a conditional branch step.
type BranchOperator string

const (
	OperatorEquals   BranchOperator = "equals"
	OperatorContains BranchOperator = "contains"
	OperatorGt       BranchOperator = "gt"
	OperatorLt       BranchOperator = "lt"
	OperatorIn       BranchOperator = "in"
)

type BranchConfig struct {
	Field    string         `json:"field"    validate:"required"`
	Operator BranchOperator `json:"operator" validate:"required,oneof=equals contains gt lt in"`
	Value    any            `json:"value"`
}

var validate = validator.New()

// DecodeConfig parses and validates the step's configuration into its typed
// form. Unknown step types and invalid payloads are errors; the executor
// converts them into failed steps.
func (s *AutomationStep) DecodeConfig() (any, error) {
	raw := s.Config
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	decode := func(dst any) (any, error) {
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("step %s: invalid %s config: %w", s.ID, s.Type, err)
		}

		if err := validate.Struct(dst); err != nil {
			return nil, fmt.Errorf("step %s: invalid %s config: %w", s.ID, s.Type, err)
		}

		return dst, nil
	}

	switch s.Type {
	case StepSendText:
		cfg := &SendTextConfig{}

		return decode(cfg)
	case StepSendTemplate:
		cfg := &SendTemplateConfig{}

		decoded, err := decode(cfg)
		if err != nil {
			return nil, err
		}

		if cfg.Language == "" {
			cfg.Language = "en"
		}

		return decoded, nil
	case StepWait:
		cfg := &WaitConfig{}

		return decode(cfg)
	case StepWaitForReply:
		return &WaitForReplyConfig{}, nil
	case StepAddTag:
		cfg := &AddTagConfig{}

		return decode(cfg)
	case StepChangeStage:
		cfg := &ChangeStageConfig{}

		return decode(cfg)
	case StepAIAnalyze:
		return &AIAnalyzeConfig{}, nil
	case StepNotifyAdmin:
		cfg := &NotifyAdminConfig{}

		return decode(cfg)
	case StepScheduleCall:
		cfg := &ScheduleCallConfig{}

		decoded, err := decode(cfg)
		if err != nil {
			return nil, err
		}

		if cfg.DelayHours == 0 {
			cfg.DelayHours = 1
		}

		return decoded, nil
	case StepConditionalBranch:
		cfg := &BranchConfig{}

		return decode(cfg)
	default:
		return nil, fmt.Errorf("step %s: unknown step type %q", s.ID, s.Type)
	}
}

// Validate checks the automation definition including every step config.
func (a *Automation) Validate() error {
	if err := validate.Struct(a); err != nil {
		return err
	}

	for _, step := range a.Steps {
		if _, err := step.DecodeConfig(); err != nil {
			return err
		}
	}

	return nil
}
