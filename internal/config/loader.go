package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	envPrefix        = "CRAFTPILOT"
	defaultDirName   = ".craftpilot"
	defaultFileName  = "craftpilot.json"
	watchDebounce    = 250 * time.Millisecond
	envProfilePrefix = "env-"
)

// providerEnvKeys maps providers to the environment variables that carry
// their API keys.
var providerEnvKeys = []struct {
	provider string
	env      string
}{
	{"anthropic", "ANTHROPIC_API_KEY"},
	{"openai", "OPENAI_API_KEY"},
	{"gemini", "GEMINI_API_KEY"},
}

// Loader handles configuration loading
type Loader struct {
	configPath string
	getenv     func(string) string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		getenv:     os.Getenv,
	}
}

// Load loads the configuration from file, environment and provider API key
// variables. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to resolve config path")
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if ext := strings.TrimPrefix(filepath.Ext(configPath), "."); ext == "" {
			v.SetConfigType("json")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	l.applyEnvProfiles(cfg)

	// Set data directory if not specified
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(configPath)
	}

	// Set logging file path if not specified
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "craftpilot.log")
	}

	return cfg, nil
}

// applyEnvProfiles fills empty keys of configured profiles from the
// provider's environment variable and adds a profile for every provider
// that has a key in the environment but no configured profile.
func (l *Loader) applyEnvProfiles(cfg *Config) {
	configured := make(map[string]bool)
	lowest := 0
	for i := range cfg.AI.Profiles {
		p := &cfg.AI.Profiles[i]
		configured[p.Provider] = true
		if p.Priority > lowest {
			lowest = p.Priority
		}
		if p.APIKey == "" {
			p.APIKey = l.envKey(p.Provider)
		}
	}

	for _, pe := range providerEnvKeys {
		if configured[pe.provider] {
			continue
		}
		key := strings.TrimSpace(l.getenv(pe.env))
		if key == "" {
			continue
		}
		lowest++
		cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{
			ID:       envProfilePrefix + pe.provider,
			Provider: pe.provider,
			APIKey:   key,
			Priority: lowest,
		})
	}
}

func (l *Loader) envKey(provider string) string {
	for _, pe := range providerEnvKeys {
		if pe.provider == provider {
			return strings.TrimSpace(l.getenv(pe.env))
		}
	}
	return ""
}

// Save saves the configuration to file. Profiles discovered from the
// environment are not written back.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if filepath.Ext(configPath) == "" {
		v.SetConfigType("json")
	}

	profiles := make([]map[string]any, 0, len(cfg.AI.Profiles))
	for _, p := range cfg.AI.Profiles {
		if strings.HasPrefix(p.ID, envProfilePrefix) {
			continue
		}
		profiles = append(profiles, map[string]any{
			"id":       p.ID,
			"provider": p.Provider,
			"api_key":  p.APIKey,
			"model":    p.Model,
			"priority": p.Priority,
		})
	}

	v.Set("session", map[string]any{
		"url":           cfg.Session.URL,
		"host":          cfg.Session.Host,
		"port":          cfg.Session.Port,
		"username":      cfg.Session.Username,
		"offline":       cfg.Session.Offline,
		"ping_interval": cfg.Session.PingInterval.String(),
	})
	v.Set("ai", map[string]any{"profiles": profiles})
	v.Set("model", map[string]any{
		"model":           cfg.Model.Model,
		"temperature":     cfg.Model.Temperature,
		"max_tokens":      cfg.Model.MaxTokens,
		"request_timeout": cfg.Model.RequestTimeout.String(),
	})
	v.Set("loop", map[string]any{
		"interval":       cfg.Loop.Interval.String(),
		"error_cooldown": cfg.Loop.ErrorCooldown.String(),
		"wait_for_spawn": cfg.Loop.WaitForSpawn,
		"sync_schedule":  cfg.Loop.SyncSchedule,
	})
	v.Set("executor", map[string]any{
		"action_timeout": cfg.Executor.ActionTimeout.String(),
		"step_delay":     cfg.Executor.StepDelay.String(),
		"step_size":      cfg.Executor.StepSize,
		"max_steps":      cfg.Executor.MaxSteps,
		"max_distance":   cfg.Executor.MaxDistance,
	})
	v.Set("decision", map[string]any{
		"max_consecutive_errors": cfg.Decision.MaxConsecutiveErrors,
		"breaker_cooldown":       cfg.Decision.BreakerCooldown.String(),
		"trace_capacity":         cfg.Decision.TraceCapacity,
	})
	v.Set("state", cfg.State)
	v.Set("dashboard", map[string]any{
		"enabled":            cfg.Dashboard.Enabled,
		"host":               cfg.Dashboard.Host,
		"port":               cfg.Dashboard.Port,
		"token":              cfg.Dashboard.Token,
		"rate_limit":         cfg.Dashboard.RateLimit,
		"burst":              cfg.Dashboard.Burst,
		"broadcast_interval": cfg.Dashboard.BroadcastInterval.String(),
	})
	v.Set("logging", cfg.Logging)
	v.Set("tracing", cfg.Tracing)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	// The file may hold API keys.
	if err := os.Chmod(configPath, 0o600); err != nil {
		return fmt.Errorf("failed to restrict config file permissions: %w", err)
	}

	return nil
}

// Watch reloads the config whenever the file changes and hands the result to
// onChange. Reload errors go to onError. It blocks until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, onChange func(*Config), onError func(error)) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}
	if onError == nil {
		onError = func(error) {}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory.
	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(configPath)
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			onError(fmt.Errorf("config watcher: %w", err))

		case <-debounce:
			debounce = nil
			cfg, err := l.Load()
			if err != nil {
				onError(err)
				continue
			}
			onChange(cfg)
		}
	}
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultDirName, defaultFileName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}

// setDefaults registers every key so AutomaticEnv can override nested
// values such as CRAFTPILOT_LOOP_INTERVAL.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("session.url", d.Session.URL)
	v.SetDefault("session.host", d.Session.Host)
	v.SetDefault("session.port", d.Session.Port)
	v.SetDefault("session.username", d.Session.Username)
	v.SetDefault("session.offline", d.Session.Offline)
	v.SetDefault("session.ping_interval", d.Session.PingInterval)

	v.SetDefault("model.model", d.Model.Model)
	v.SetDefault("model.temperature", d.Model.Temperature)
	v.SetDefault("model.max_tokens", d.Model.MaxTokens)
	v.SetDefault("model.request_timeout", d.Model.RequestTimeout)

	v.SetDefault("loop.interval", d.Loop.Interval)
	v.SetDefault("loop.error_cooldown", d.Loop.ErrorCooldown)
	v.SetDefault("loop.wait_for_spawn", d.Loop.WaitForSpawn)
	v.SetDefault("loop.sync_schedule", d.Loop.SyncSchedule)

	v.SetDefault("executor.action_timeout", d.Executor.ActionTimeout)
	v.SetDefault("executor.step_delay", d.Executor.StepDelay)
	v.SetDefault("executor.step_size", d.Executor.StepSize)
	v.SetDefault("executor.max_steps", d.Executor.MaxSteps)
	v.SetDefault("executor.max_distance", d.Executor.MaxDistance)

	v.SetDefault("decision.max_consecutive_errors", d.Decision.MaxConsecutiveErrors)
	v.SetDefault("decision.breaker_cooldown", d.Decision.BreakerCooldown)
	v.SetDefault("decision.trace_capacity", d.Decision.TraceCapacity)

	v.SetDefault("state.history_capacity", d.State.HistoryCapacity)

	v.SetDefault("dashboard.enabled", d.Dashboard.Enabled)
	v.SetDefault("dashboard.host", d.Dashboard.Host)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
	v.SetDefault("dashboard.token", d.Dashboard.Token)
	v.SetDefault("dashboard.rate_limit", d.Dashboard.RateLimit)
	v.SetDefault("dashboard.burst", d.Dashboard.Burst)
	v.SetDefault("dashboard.broadcast_interval", d.Dashboard.BroadcastInterval)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.redaction", d.Logging.Redaction)
	v.SetDefault("logging.console", d.Logging.Console)
	v.SetDefault("logging.pretty", d.Logging.Pretty)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)

	v.SetDefault("data_dir", d.DataDir)
}
