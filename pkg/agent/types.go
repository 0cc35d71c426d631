package agent

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Supported provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// AuthProfile represents authentication credentials for LLM providers
type AuthProfile struct {
	ID            string `json:"id"`
	Provider      string `json:"provider"` // "anthropic", "openai", "gemini"
	APIKey        string `json:"api_key"`
	Model         string `json:"model,omitempty"`
	CooldownUntil *int64 `json:"cooldown_until,omitempty"`
	FailureCount  int    `json:"failure_count"`
	Priority      int    `json:"priority"`
}

// ModelConfig configures request parameters shared by all profiles.
type ModelConfig struct {
	Model          string        `json:"model,omitempty"`
	Temperature    float64       `json:"temperature,omitempty"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	SystemPrompt   string        `json:"system_prompt,omitempty"`
	RequestTimeout time.Duration `json:"request_timeout,omitempty"`
}

// AgentMessage represents a message in the conversation
type AgentMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// DefaultModelConfig returns default request parameters
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Temperature:    0.7,
		MaxTokens:      1024,
		RequestTimeout: 45 * time.Second,
	}
}

// DefaultModelFor returns the model used when neither the profile nor the
// model config names one.
func DefaultModelFor(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return "claude-3-5-sonnet-20241022"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderGemini:
		return "gemini-2.0-flash"
	default:
		return ""
	}
}

// IsRetryableError reports whether another profile may succeed where this
// one failed: network errors, rate limits and server errors.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.StatusCode != 0 {
		return svcErr.StatusCode == http.StatusTooManyRequests || svcErr.StatusCode >= 500
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"econnreset", "etimedout", "connection refused", "deadline exceeded", "timeout", "429", "rate limit", "500", "502", "503", "504"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// sortProfilesByPriority sorts profiles by priority (lower = higher priority)
func sortProfilesByPriority(profiles []AuthProfile) {
	for i := 1; i < len(profiles); i++ {
		for j := i; j > 0 && profiles[j].Priority < profiles[j-1].Priority; j-- {
			profiles[j], profiles[j-1] = profiles[j-1], profiles[j]
		}
	}
}
