package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateAPIKey("sk-ant-123", "anthropic"))
	assert.Error(t, v.ValidateAPIKey("sk-123", "anthropic"))
	assert.NoError(t, v.ValidateAPIKey("sk-123", "openai"))
	assert.Error(t, v.ValidateAPIKey("key-123", "openai"))
	assert.NoError(t, v.ValidateAPIKey("AIza-anything", "gemini"))
	assert.Error(t, v.ValidateAPIKey("", "gemini"))
}

func TestValidateSessionURL(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateSessionURL("ws://127.0.0.1:3001/bridge"))
	assert.NoError(t, v.ValidateSessionURL("wss://bridge.example.com"))
	assert.Error(t, v.ValidateSessionURL("http://127.0.0.1:3001"))
	assert.Error(t, v.ValidateSessionURL("ws://"))
	assert.Error(t, v.ValidateSessionURL("::not a url"))
}

func TestValidateSchedule(t *testing.T) {
	v := NewValidator()

	for _, spec := range []string{"", "off", "OFF", "@every 30s", "@hourly", "*/5 * * * *"} {
		assert.NoError(t, v.ValidateSchedule(spec), spec)
	}
	for _, spec := range []string{"every minute", "* * *", "@every soon"} {
		assert.Error(t, v.ValidateSchedule(spec), spec)
	}
}

func TestValidateRanges(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateTemperature(0))
	assert.NoError(t, v.ValidateTemperature(1.5))
	assert.Error(t, v.ValidateTemperature(-0.1))
	assert.Error(t, v.ValidateTemperature(2.1))

	assert.NoError(t, v.ValidateMaxTokens(1024))
	assert.Error(t, v.ValidateMaxTokens(0))
	assert.Error(t, v.ValidateMaxTokens(300000))

	assert.NoError(t, v.ValidatePort("dashboard", 8420))
	assert.Error(t, v.ValidatePort("dashboard", 0))
	assert.Error(t, v.ValidatePort("dashboard", 70000))

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	assert.Error(t, v.ValidateLogLevel("trace"))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	assert.Empty(t, v.ValidateConfig(validConfig()))

	cfg := validConfig()
	cfg.Model.Temperature = 5
	cfg.Executor.StepDelay = -1
	cfg.Logging.Level = "loud"
	assert.Len(t, v.ValidateConfig(cfg), 3)

	cfg = validConfig()
	cfg.Dashboard.Enabled = false
	cfg.Dashboard.Port = -1
	assert.Empty(t, v.ValidateConfig(cfg), "disabled dashboard is not checked")
}

func TestWarnings(t *testing.T) {
	v := NewValidator()

	assert.Empty(t, v.Warnings(validConfig()))

	cfg := validConfig()
	cfg.AI.Profiles[0].APIKey = "not-a-real-key"
	cfg.Dashboard.Host = "0.0.0.0"
	warnings := v.Warnings(cfg)
	assert.Len(t, warnings, 2)
	assert.Contains(t, warnings[0], "primary")
}
