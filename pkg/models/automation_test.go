package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeConfigSendText(t *testing.T) {
	step := &AutomationStep{ID: "s1", Type: StepSendText, Config: json.RawMessage(`{"text":"Hi {{name}}"}`)}

	config, err := step.DecodeConfig()
	require.NoError(t, err)

	cfg, ok := config.(*SendTextConfig)
	require.True(t, ok)
	assert.Equal(t, "Hi {{name}}", cfg.Text)
}

func TestDecodeConfigSendTextMissingText(t *testing.T) {
	step := &AutomationStep{ID: "s1", Type: StepSendText, Config: json.RawMessage(`{}`)}

	_, err := step.DecodeConfig()
	assert.Error(t, err)
}

func TestDecodeConfigSendTemplateDefaultsLanguage(t *testing.T) {
	step := &AutomationStep{ID: "s1", Type: StepSendTemplate, Config: json.RawMessage(`{"templateName":"welcome"}`)}

	config, err := step.DecodeConfig()
	require.NoError(t, err)

	cfg, ok := config.(*SendTemplateConfig)
	require.True(t, ok)
	assert.Equal(t, "en", cfg.Language)
}

func TestDecodeConfigWaitDelay(t *testing.T) {
	step := &AutomationStep{ID: "s1", Type: StepWait, Config: json.RawMessage(`{"days":1,"hours":2,"minutes":30}`)}

	config, err := step.DecodeConfig()
	require.NoError(t, err)

	cfg, ok := config.(*WaitConfig)
	require.True(t, ok)
	assert.Equal(t, 26*time.Hour+30*time.Minute, cfg.Delay())
}

func TestDecodeConfigWaitNegative(t *testing.T) {
	step := &AutomationStep{ID: "s1", Type: StepWait, Config: json.RawMessage(`{"minutes":-5}`)}

	_, err := step.DecodeConfig()
	assert.Error(t, err)
}

func TestDecodeConfigChangeStageRejectsUnknownStage(t *testing.T) {
	step := &AutomationStep{ID: "s1", Type: StepChangeStage, Config: json.RawMessage(`{"stage":"VIP"}`)}

	_, err := step.DecodeConfig()
	assert.Error(t, err)
}

func TestDecodeConfigEmptyConfigForParameterlessSteps(t *testing.T) {
	for _, stepType := range []StepType{StepWaitForReply, StepAIAnalyze} {
		step := &AutomationStep{ID: "s1", Type: stepType}

		_, err := step.DecodeConfig()
		assert.NoError(t, err, string(stepType))
	}
}

func TestDecodeConfigUnknownType(t *testing.T) {
	step := &AutomationStep{ID: "s1", Type: StepType("TELEPORT")}

	_, err := step.DecodeConfig()
	assert.Error(t, err)
}

func TestDecodeConfigScheduleCallDefaultDelay(t *testing.T) {
	step := &AutomationStep{ID: "s1", Type: StepScheduleCall, Config: json.RawMessage(`{"notes":"call back"}`)}

	config, err := step.DecodeConfig()
	require.NoError(t, err)

	cfg, ok := config.(*ScheduleCallConfig)
	require.True(t, ok)
	assert.Equal(t, 1, cfg.DelayHours)
}

func TestScheduleCron(t *testing.T) {
	automation := &Automation{Trigger: TriggerScheduled}
	assert.Equal(t, DefaultScheduleCron, automation.ScheduleCron())

	automation.TriggerConfig = json.RawMessage(`{"cron":"0 18 * * 5"}`)
	assert.Equal(t, "0 18 * * 5", automation.ScheduleCron())
}

func TestRunStatusTerminal(t *testing.T) {
	assert.True(t, RunStatusCompleted.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
	assert.False(t, RunStatusRunning.Terminal())
	assert.False(t, RunStatusPaused.Terminal())
	assert.False(t, RunStatusWaiting.Terminal())
}

func TestAutomationValidateChecksSteps(t *testing.T) {
	automation := &Automation{
		Name:    "Welcome flow",
		Trigger: TriggerCustomerCreated,
		Steps: []*AutomationStep{
			{ID: "s1", Type: StepSendText, Config: json.RawMessage(`{}`)},
		},
	}

	assert.Error(t, automation.Validate())

	automation.Steps[0].Config = json.RawMessage(`{"text":"Welcome!"}`)
	assert.NoError(t, automation.Validate())
}
