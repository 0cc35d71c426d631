package agent

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", &ServiceError{Provider: ProviderOpenAI, StatusCode: 429}, true},
		{"server error", &ServiceError{Provider: ProviderOpenAI, StatusCode: 502}, true},
		{"unauthorized", &ServiceError{Provider: ProviderOpenAI, StatusCode: 401, Message: "timeout"}, false},
		{"wrapped server error", fmt.Errorf("call: %w", &ServiceError{StatusCode: 500}), true},
		{"network", errors.New("dial tcp: connection refused"), true},
		{"deadline", errors.New("context deadline exceeded"), true},
		{"other", errors.New("invalid request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestSortProfilesByPriority(t *testing.T) {
	profiles := []AuthProfile{
		{ID: "c", Priority: 3},
		{ID: "a", Priority: 1},
		{ID: "b1", Priority: 2},
		{ID: "b2", Priority: 2},
	}
	sortProfilesByPriority(profiles)

	ids := make([]string, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"a", "b1", "b2", "c"}, ids)
}

func TestServiceError(t *testing.T) {
	base := errors.New("boom")
	err := wrapServiceError(ProviderGemini, 503, base)

	assert.Equal(t, "gemini: status 503: boom", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Same(t, err, wrapServiceError(ProviderOpenAI, 0, err))
	assert.Nil(t, wrapServiceError(ProviderOpenAI, 0, nil))
	assert.Equal(t, "openai: boom", (&ServiceError{Provider: ProviderOpenAI, Message: "boom"}).Error())
}

func TestDefaultModelFor(t *testing.T) {
	assert.NotEmpty(t, DefaultModelFor(ProviderAnthropic))
	assert.NotEmpty(t, DefaultModelFor(ProviderOpenAI))
	assert.NotEmpty(t, DefaultModelFor(ProviderGemini))
	assert.Empty(t, DefaultModelFor("unknown"))
}
