package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

var (
	validProviders = []string{"anthropic", "openai", "gemini"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProvider validates a provider name
func (v *Validator) ValidateProvider(provider string) error {
	for _, valid := range validProviders {
		if provider == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid provider %s (must be one of: %s)", provider, strings.Join(validProviders, ", "))
}

// ValidateAPIKey checks an API key against the provider's known prefix
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateSessionURL requires a ws or wss URL with a host
func (v *Validator) ValidateSessionURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid session url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("session url must use ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("session url has no host")
	}
	return nil
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s port must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	for _, valid := range validLogLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLogLevels, ", "))
}

// ValidateSchedule accepts a standard cron spec, an @-descriptor, or "off"
func (v *Validator) ValidateSchedule(spec string) error {
	if spec == "" || strings.EqualFold(spec, "off") {
		return nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid sync schedule: %w", err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	for i, profile := range cfg.AI.Profiles {
		if profile.Provider == "" {
			continue
		}
		if err := v.ValidateProvider(profile.Provider); err != nil {
			errors = append(errors, fmt.Errorf("AI profile %d (%s): %w", i, profile.ID, err))
		}
	}

	if !cfg.Session.Offline {
		if err := v.ValidateSessionURL(cfg.Session.URL); err != nil {
			errors = append(errors, err)
		}
		if err := v.ValidatePort("session", cfg.Session.Port); err != nil {
			errors = append(errors, err)
		}
	}

	if err := v.ValidateTemperature(cfg.Model.Temperature); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateMaxTokens(cfg.Model.MaxTokens); err != nil {
		errors = append(errors, err)
	}
	if cfg.Model.RequestTimeout < 0 {
		errors = append(errors, fmt.Errorf("model.request_timeout must be >= 0"))
	}

	if cfg.Loop.Interval < 0 {
		errors = append(errors, fmt.Errorf("loop.interval must be >= 0"))
	}
	if cfg.Loop.ErrorCooldown < 0 {
		errors = append(errors, fmt.Errorf("loop.error_cooldown must be >= 0"))
	}
	if err := v.ValidateSchedule(cfg.Loop.SyncSchedule); err != nil {
		errors = append(errors, err)
	}

	if cfg.Executor.ActionTimeout < 0 {
		errors = append(errors, fmt.Errorf("executor.action_timeout must be >= 0"))
	}
	if cfg.Executor.StepDelay < 0 {
		errors = append(errors, fmt.Errorf("executor.step_delay must be >= 0"))
	}
	if cfg.Executor.StepSize < 0 {
		errors = append(errors, fmt.Errorf("executor.step_size must be >= 0"))
	}
	if cfg.Executor.MaxSteps < 0 {
		errors = append(errors, fmt.Errorf("executor.max_steps must be >= 0"))
	}

	if cfg.Decision.MaxConsecutiveErrors < 0 {
		errors = append(errors, fmt.Errorf("decision.max_consecutive_errors must be >= 0"))
	}
	if cfg.Decision.TraceCapacity < 0 {
		errors = append(errors, fmt.Errorf("decision.trace_capacity must be >= 0"))
	}

	if cfg.State.HistoryCapacity < 0 || cfg.State.HistoryCapacity > 100 {
		errors = append(errors, fmt.Errorf("state.history_capacity must be between 0 and 100, got %d", cfg.State.HistoryCapacity))
	}

	if cfg.Dashboard.Enabled {
		if err := v.ValidatePort("dashboard", cfg.Dashboard.Port); err != nil {
			errors = append(errors, err)
		}
		if cfg.Dashboard.RateLimit < 0 {
			errors = append(errors, fmt.Errorf("dashboard.rate_limit must be >= 0"))
		}
		if cfg.Dashboard.Burst < 0 {
			errors = append(errors, fmt.Errorf("dashboard.burst must be >= 0"))
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// Warnings returns findings that do not block startup, such as API keys
// that do not look like the provider's format.
func (v *Validator) Warnings(cfg *Config) []string {
	var warnings []string
	for _, profile := range cfg.AI.Profiles {
		if profile.APIKey == "" {
			continue
		}
		if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
			warnings = append(warnings, fmt.Sprintf("AI profile %s: %v", profile.ID, err))
		}
	}
	if cfg.Dashboard.Enabled && cfg.Dashboard.Token == "" && cfg.Dashboard.Host != "127.0.0.1" && cfg.Dashboard.Host != "localhost" {
		warnings = append(warnings, "dashboard is reachable beyond localhost without a token")
	}
	return warnings
}
