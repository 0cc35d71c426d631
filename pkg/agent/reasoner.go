package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harun/craftpilot/internal/observability"
	"github.com/harun/craftpilot/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const profileCooldownStep = 60 * time.Second

// Config holds reasoner configuration
type Config struct {
	Profiles []AuthProfile
	Model    ModelConfig
	Factory  ProviderCreator
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Reasoner answers prompts using the first healthy auth profile.
type Reasoner struct {
	mu        sync.RWMutex
	profiles  []AuthProfile
	providers map[string]LLMProvider

	model   ModelConfig
	factory ProviderCreator
	logger  zerolog.Logger
	now     func() time.Time
}

// NewReasoner creates a new reasoner
func NewReasoner(cfg Config) (*Reasoner, error) {
	if len(cfg.Profiles) == 0 {
		return nil, ErrNoProfiles
	}
	for i, p := range cfg.Profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("profile %d: id is required", i)
		}
		if p.Provider == "" {
			return nil, fmt.Errorf("profile %s: provider is required", p.ID)
		}
	}

	factory := cfg.Factory
	if factory == nil {
		factory = &ProviderFactory{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	model := cfg.Model
	defaults := DefaultModelConfig()
	if model.Temperature <= 0 {
		model.Temperature = defaults.Temperature
	}
	if model.MaxTokens <= 0 {
		model.MaxTokens = defaults.MaxTokens
	}
	if model.RequestTimeout <= 0 {
		model.RequestTimeout = defaults.RequestTimeout
	}

	profiles := make([]AuthProfile, len(cfg.Profiles))
	copy(profiles, cfg.Profiles)
	sortProfilesByPriority(profiles)

	return &Reasoner{
		profiles:  profiles,
		providers: make(map[string]LLMProvider),
		model:     model,
		factory:   factory,
		logger:    cfg.Logger,
		now:       now,
	}, nil
}

// Complete sends a single-turn prompt and returns the reply text. Each
// profile is tried at most once per call.
func (r *Reasoner) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "craftpilot.agent", "agent.complete")
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, r.logger)
	candidates := r.candidates()

	var lastErr error
	for _, profile := range candidates {
		start := r.now()
		logger.Debug().Str("profileId", profile.ID).Msg("Trying auth profile")

		provider, err := r.provider(profile)
		if err != nil {
			observability.RecordReasoningCall(profile.Provider, r.now().Sub(start), false)
			logger.Warn().Str("profileId", profile.ID).Err(err).Msg("Failed to create provider")
			lastErr = err
			continue
		}

		content, err := r.call(ctx, provider, profile, prompt)
		observability.RecordReasoningCall(profile.Provider, r.now().Sub(start), err == nil)
		if err == nil {
			r.markSuccess(profile.ID)
			span.SetAttributes(attribute.String("provider", profile.Provider))
			return content, nil
		}

		lastErr = err
		logger.Warn().Str("profileId", profile.ID).Err(err).Msg("Auth profile failed")
		r.markFailure(profile.ID)

		if !IsRetryableError(err) {
			tracing.FailSpan(span, err)
			return "", err
		}
	}

	if lastErr == nil {
		lastErr = ErrNoProfiles
	}
	tracing.FailSpan(span, lastErr)
	return "", fmt.Errorf("all auth profiles failed: %w", lastErr)
}

// Profiles returns a copy of the profiles with their current cooldown state.
// API keys are masked.
func (r *Reasoner) Profiles() []AuthProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AuthProfile, len(r.profiles))
	copy(out, r.profiles)
	for i := range out {
		if out[i].APIKey != "" {
			out[i].APIKey = "***"
		}
		if out[i].CooldownUntil != nil {
			v := *out[i].CooldownUntil
			out[i].CooldownUntil = &v
		}
	}
	return out
}

func (r *Reasoner) call(ctx context.Context, provider LLMProvider, profile AuthProfile, prompt string) (string, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"craftpilot.agent",
		"agent.call_provider",
		attribute.String("provider", provider.Provider()),
		attribute.String("profile", profile.ID),
	)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, r.model.RequestTimeout)
	defer cancel()

	response, err := provider.Call(callCtx, LLMRequest{
		Model:        r.modelFor(profile),
		Messages:     []AgentMessage{{Role: "user", Content: prompt}},
		Temperature:  r.model.Temperature,
		MaxTokens:    r.model.MaxTokens,
		SystemPrompt: r.model.SystemPrompt,
	})
	if err != nil {
		err = wrapServiceError(provider.Provider(), 0, err)
		tracing.FailSpan(span, err)
		return "", err
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		err = &ServiceError{
			Provider: provider.Provider(),
			Message:  ErrEmptyResponse.Error(),
			Err:      ErrEmptyResponse,
		}
		tracing.FailSpan(span, err)
		return "", err
	}
	if response.Usage != nil {
		span.SetAttributes(
			attribute.Int("usage.input_tokens", response.Usage.InputTokens),
			attribute.Int("usage.output_tokens", response.Usage.OutputTokens),
		)
	}
	return response.Content, nil
}

// candidates orders profiles by priority, skipping those in cooldown. When
// every profile is cooling down they are all returned, earliest expiry first,
// so a single-profile setup is never locked out.
func (r *Reasoner) candidates() []AuthProfile {
	r.mu.RLock()
	profiles := make([]AuthProfile, len(r.profiles))
	copy(profiles, r.profiles)
	r.mu.RUnlock()

	nowMs := r.now().UnixMilli()
	ready := make([]AuthProfile, 0, len(profiles))
	for _, p := range profiles {
		if p.CooldownUntil != nil && nowMs < *p.CooldownUntil {
			observability.SetProviderCooldown(p.Provider, true)
			continue
		}
		ready = append(ready, p)
	}
	if len(ready) > 0 {
		return ready
	}

	for i := 1; i < len(profiles); i++ {
		for j := i; j > 0 && *profiles[j].CooldownUntil < *profiles[j-1].CooldownUntil; j-- {
			profiles[j], profiles[j-1] = profiles[j-1], profiles[j]
		}
	}
	return profiles
}

func (r *Reasoner) provider(profile AuthProfile) (LLMProvider, error) {
	r.mu.RLock()
	p, ok := r.providers[profile.ID]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := r.factory.NewProvider(profile)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider for profile %s: %w", profile.ID, err)
	}

	r.mu.Lock()
	r.providers[profile.ID] = p
	r.mu.Unlock()
	return p, nil
}

func (r *Reasoner) modelFor(profile AuthProfile) string {
	if profile.Model != "" {
		return profile.Model
	}
	if r.model.Model != "" {
		return r.model.Model
	}
	return DefaultModelFor(profile.Provider)
}

// markSuccess resets failure count for a profile
func (r *Reasoner) markSuccess(profileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.profiles {
		if r.profiles[i].ID == profileID {
			r.profiles[i].FailureCount = 0
			r.profiles[i].CooldownUntil = nil
			observability.SetProviderCooldown(r.profiles[i].Provider, false)
			break
		}
	}
}

// markFailure puts a profile into cooldown, longer for each repeated failure
func (r *Reasoner) markFailure(profileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.profiles {
		if r.profiles[i].ID == profileID {
			r.profiles[i].FailureCount++
			until := r.now().Add(profileCooldownStep * time.Duration(r.profiles[i].FailureCount)).UnixMilli()
			r.profiles[i].CooldownUntil = &until
			observability.SetProviderCooldown(r.profiles[i].Provider, true)
			break
		}
	}
}
