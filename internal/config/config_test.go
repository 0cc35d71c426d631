package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.AI.Profiles = []AIProfile{
		{ID: "primary", Provider: "anthropic", APIKey: "sk-ant-test", Priority: 1},
	}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10*time.Second, cfg.Loop.Interval)
	assert.Equal(t, 5*time.Second, cfg.Loop.ErrorCooldown)
	assert.True(t, cfg.Loop.WaitForSpawn)
	assert.Equal(t, "@every 30s", cfg.Loop.SyncSchedule)
	assert.Equal(t, 30*time.Second, cfg.Executor.ActionTimeout)
	assert.Equal(t, 5, cfg.Decision.MaxConsecutiveErrors)
	assert.Equal(t, 60*time.Second, cfg.Decision.BreakerCooldown)
	assert.Equal(t, 100, cfg.State.HistoryCapacity)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.Equal(t, 25565, cfg.Session.Port)
	assert.Empty(t, cfg.AI.Profiles)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"no profiles", func(c *Config) { c.AI.Profiles = nil }, "no AI credentials"},
		{"missing id", func(c *Config) { c.AI.Profiles[0].ID = "" }, "ID is required"},
		{"duplicate id", func(c *Config) {
			c.AI.Profiles = append(c.AI.Profiles, AIProfile{ID: "primary", Provider: "openai", APIKey: "sk-x"})
		}, "duplicate ID"},
		{"missing provider", func(c *Config) { c.AI.Profiles[0].Provider = "" }, "provider is required"},
		{"missing key", func(c *Config) { c.AI.Profiles[0].APIKey = "" }, "api_key is required"},
		{"unknown provider", func(c *Config) { c.AI.Profiles[0].Provider = "llama" }, "invalid provider"},
		{"missing url", func(c *Config) { c.Session.URL = "" }, "session url is required"},
		{"http url", func(c *Config) { c.Session.URL = "http://localhost:3001" }, "ws or wss"},
		{"missing username", func(c *Config) { c.Session.Username = " " }, "username is required"},
		{"bad schedule", func(c *Config) { c.Loop.SyncSchedule = "sometimes" }, "invalid sync schedule"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad history capacity", func(c *Config) { c.State.HistoryCapacity = 5000 }, "history_capacity"},
		{"history capacity above ring size", func(c *Config) { c.State.HistoryCapacity = 101 }, "history_capacity"},
		{"bad dashboard port", func(c *Config) { c.Dashboard.Port = 0 }, "dashboard port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("offline skips session checks", func(t *testing.T) {
		cfg := validConfig()
		cfg.Session.Offline = true
		cfg.Session.URL = ""
		cfg.Session.Username = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestConfigString(t *testing.T) {
	cfg := validConfig()
	cfg.Dashboard.Token = "dash-secret"

	out := cfg.String()
	assert.NotContains(t, out, "sk-ant-test")
	assert.NotContains(t, out, "dash-secret")
	assert.True(t, strings.Contains(out, `"api_key": "***"`))
	assert.Equal(t, "sk-ant-test", cfg.AI.Profiles[0].APIKey, "original must be untouched")
}
