package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config represents the main craftpilot configuration
type Config struct {
	// Game session bridge
	Session SessionConfig `json:"session" mapstructure:"session"`

	// AI provider profiles
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Request parameters shared by all profiles
	Model ModelConfig `json:"model" mapstructure:"model"`

	// Control loop pacing
	Loop LoopConfig `json:"loop" mapstructure:"loop"`

	// Action execution
	Executor ExecutorConfig `json:"executor" mapstructure:"executor"`

	// Decision engine breaker and traces
	Decision DecisionConfig `json:"decision" mapstructure:"decision"`

	// World state store
	State StateConfig `json:"state" mapstructure:"state"`

	// Dashboard server
	Dashboard DashboardConfig `json:"dashboard" mapstructure:"dashboard"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// SessionConfig holds the bridge connection settings
type SessionConfig struct {
	URL          string        `json:"url" mapstructure:"url"`
	Host         string        `json:"host" mapstructure:"host"`
	Port         int           `json:"port" mapstructure:"port"`
	Username     string        `json:"username" mapstructure:"username"`
	Offline      bool          `json:"offline" mapstructure:"offline"`
	PingInterval time.Duration `json:"ping_interval" mapstructure:"ping_interval"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai, gemini
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Model    string `json:"model,omitempty" mapstructure:"model"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// ModelConfig holds request parameters
type ModelConfig struct {
	Model          string        `json:"model,omitempty" mapstructure:"model"`
	Temperature    float64       `json:"temperature" mapstructure:"temperature"`
	MaxTokens      int           `json:"max_tokens" mapstructure:"max_tokens"`
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout"`
}

// LoopConfig holds control loop settings
type LoopConfig struct {
	Interval      time.Duration `json:"interval" mapstructure:"interval"`
	ErrorCooldown time.Duration `json:"error_cooldown" mapstructure:"error_cooldown"`
	WaitForSpawn  bool          `json:"wait_for_spawn" mapstructure:"wait_for_spawn"`
	SyncSchedule  string        `json:"sync_schedule" mapstructure:"sync_schedule"` // cron spec or "off"
}

// ExecutorConfig holds action execution settings
type ExecutorConfig struct {
	ActionTimeout time.Duration `json:"action_timeout" mapstructure:"action_timeout"`
	StepDelay     time.Duration `json:"step_delay" mapstructure:"step_delay"`
	StepSize      float64       `json:"step_size" mapstructure:"step_size"`
	MaxSteps      int           `json:"max_steps" mapstructure:"max_steps"`
	MaxDistance   float64       `json:"max_distance" mapstructure:"max_distance"`
}

// DecisionConfig holds decision engine settings
type DecisionConfig struct {
	MaxConsecutiveErrors int           `json:"max_consecutive_errors" mapstructure:"max_consecutive_errors"`
	BreakerCooldown      time.Duration `json:"breaker_cooldown" mapstructure:"breaker_cooldown"`
	TraceCapacity        int           `json:"trace_capacity" mapstructure:"trace_capacity"`
}

// StateConfig holds world state settings
type StateConfig struct {
	HistoryCapacity int `json:"history_capacity" mapstructure:"history_capacity"`
}

// DashboardConfig holds dashboard server configuration
type DashboardConfig struct {
	Enabled           bool          `json:"enabled" mapstructure:"enabled"`
	Host              string        `json:"host" mapstructure:"host"`
	Port              int           `json:"port" mapstructure:"port"`
	Token             string        `json:"token" mapstructure:"token"`
	RateLimit         float64       `json:"rate_limit" mapstructure:"rate_limit"` // manual commands per second
	Burst             int           `json:"burst" mapstructure:"burst"`
	BroadcastInterval time.Duration `json:"broadcast_interval" mapstructure:"broadcast_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	MaxSize    int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge     int    `json:"max_age" mapstructure:"max_age"`   // days
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
	Redaction  bool   `json:"redaction" mapstructure:"redaction"`
	Console    bool   `json:"console" mapstructure:"console"`
	Pretty     bool   `json:"pretty" mapstructure:"pretty"`
}

// TracingConfig controls OpenTelemetry span export
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			URL:          "ws://127.0.0.1:3001/bridge",
			Host:         "localhost",
			Port:         25565,
			Username:     "craftpilot",
			PingInterval: 20 * time.Second,
		},
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Model: ModelConfig{
			Temperature:    0.7,
			MaxTokens:      1024,
			RequestTimeout: 45 * time.Second,
		},
		Loop: LoopConfig{
			Interval:      10 * time.Second,
			ErrorCooldown: 5 * time.Second,
			WaitForSpawn:  true,
			SyncSchedule:  "@every 30s",
		},
		Executor: ExecutorConfig{
			ActionTimeout: 30 * time.Second,
			StepDelay:     150 * time.Millisecond,
			StepSize:      1,
			MaxSteps:      32,
			MaxDistance:   64,
		},
		Decision: DecisionConfig{
			MaxConsecutiveErrors: 5,
			BreakerCooldown:      60 * time.Second,
			TraceCapacity:        20,
		},
		State: StateConfig{
			HistoryCapacity: 100,
		},
		Dashboard: DashboardConfig{
			Enabled:           true,
			Host:              "127.0.0.1",
			Port:              8420,
			RateLimit:         1,
			Burst:             3,
			BroadcastInterval: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    100,
			MaxAge:     7,
			MaxBackups: 5,
			Compress:   true,
			Redaction:  true,
			Console:    true,
			Pretty:     true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "craftpilot",
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	masked.AI.Profiles = make([]AIProfile, len(c.AI.Profiles))
	for i, p := range c.AI.Profiles {
		if p.APIKey != "" {
			p.APIKey = "***"
		}
		masked.AI.Profiles[i] = p
	}
	if masked.Dashboard.Token != "" {
		masked.Dashboard.Token = "***"
	}
	data, _ := json.MarshalIndent(&masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Require at least one AI profile
	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one AI profile is required")
	}

	seen := make(map[string]bool, len(c.AI.Profiles))
	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if seen[profile.ID] {
			return fmt.Errorf("AI profile %s: duplicate ID", profile.ID)
		}
		seen[profile.ID] = true
		if profile.Provider == "" {
			return fmt.Errorf("AI profile %s: provider is required", profile.ID)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
	}

	if !c.Session.Offline {
		if strings.TrimSpace(c.Session.URL) == "" {
			return fmt.Errorf("session url is required")
		}
		if strings.TrimSpace(c.Session.Username) == "" {
			return fmt.Errorf("session username is required")
		}
	}

	return errors.Join(NewValidator().ValidateConfig(c)...)
}
