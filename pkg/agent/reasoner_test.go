package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu       sync.Mutex
	name     string
	replies  []string
	errs     []error
	requests []LLMRequest
}

func (p *fakeProvider) Provider() string { return p.name }

func (p *fakeProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, request)
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	reply := ""
	if len(p.replies) > 0 {
		reply = p.replies[0]
		p.replies = p.replies[1:]
	}
	return &LLMResponse{Content: reply, Usage: &TokenUsage{InputTokens: 10, OutputTokens: 5}}, nil
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type fakeFactory struct {
	providers map[string]*fakeProvider
	created   int
}

func (f *fakeFactory) NewProvider(profile AuthProfile) (LLMProvider, error) {
	p, ok := f.providers[profile.ID]
	if !ok {
		return nil, errors.New("no provider for " + profile.ID)
	}
	f.created++
	return p, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestReasoner(t *testing.T, factory *fakeFactory, clock *fakeClock, profiles ...AuthProfile) *Reasoner {
	t.Helper()
	r, err := NewReasoner(Config{
		Profiles: profiles,
		Model:    DefaultModelConfig(),
		Factory:  factory,
		Logger:   zerolog.Nop(),
		Now:      clock.Now,
	})
	require.NoError(t, err)
	return r
}

func TestNewReasoner(t *testing.T) {
	t.Run("should require profiles", func(t *testing.T) {
		_, err := NewReasoner(Config{})
		assert.ErrorIs(t, err, ErrNoProfiles)
	})

	t.Run("should require profile id and provider", func(t *testing.T) {
		_, err := NewReasoner(Config{Profiles: []AuthProfile{{Provider: ProviderOpenAI}}})
		assert.Error(t, err)

		_, err = NewReasoner(Config{Profiles: []AuthProfile{{ID: "a"}}})
		assert.Error(t, err)
	})

	t.Run("should fill model defaults", func(t *testing.T) {
		r, err := NewReasoner(Config{Profiles: []AuthProfile{{ID: "a", Provider: ProviderOpenAI}}})
		require.NoError(t, err)
		assert.Equal(t, 1024, r.model.MaxTokens)
		assert.Equal(t, 45*time.Second, r.model.RequestTimeout)
	})
}

func TestReasonerComplete(t *testing.T) {
	t.Run("should return reply from the highest priority profile", func(t *testing.T) {
		primary := &fakeProvider{name: ProviderAnthropic, replies: []string{"ACTION: explore"}}
		backup := &fakeProvider{name: ProviderOpenAI, replies: []string{"ACTION: wait"}}
		factory := &fakeFactory{providers: map[string]*fakeProvider{"primary": primary, "backup": backup}}
		clock := &fakeClock{now: time.Unix(1000, 0)}

		r := newTestReasoner(t, factory, clock,
			AuthProfile{ID: "backup", Provider: ProviderOpenAI, Priority: 2},
			AuthProfile{ID: "primary", Provider: ProviderAnthropic, Priority: 1},
		)

		reply, err := r.Complete(context.Background(), "what next?")
		require.NoError(t, err)
		assert.Equal(t, "ACTION: explore", reply)
		assert.Equal(t, 1, primary.calls())
		assert.Equal(t, 0, backup.calls())

		req := primary.requests[0]
		assert.Equal(t, DefaultModelFor(ProviderAnthropic), req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "what next?", req.Messages[0].Content)
	})

	t.Run("should fail over on retryable errors and cool the failed profile", func(t *testing.T) {
		primary := &fakeProvider{
			name: ProviderAnthropic,
			errs: []error{&ServiceError{Provider: ProviderAnthropic, StatusCode: 503, Message: "overloaded"}},
		}
		backup := &fakeProvider{name: ProviderOpenAI, replies: []string{"ACTION: mine oak_log", "ACTION: wait"}}
		factory := &fakeFactory{providers: map[string]*fakeProvider{"primary": primary, "backup": backup}}
		clock := &fakeClock{now: time.Unix(1000, 0)}

		r := newTestReasoner(t, factory, clock,
			AuthProfile{ID: "primary", Provider: ProviderAnthropic, Priority: 1},
			AuthProfile{ID: "backup", Provider: ProviderOpenAI, Priority: 2},
		)

		reply, err := r.Complete(context.Background(), "p")
		require.NoError(t, err)
		assert.Equal(t, "ACTION: mine oak_log", reply)

		profiles := r.Profiles()
		require.NotNil(t, profiles[0].CooldownUntil)
		assert.Equal(t, 1, profiles[0].FailureCount)
		assert.Equal(t, clock.Now().Add(60*time.Second).UnixMilli(), *profiles[0].CooldownUntil)

		// Primary is cooling down, so the next call goes straight to backup.
		_, err = r.Complete(context.Background(), "p")
		require.NoError(t, err)
		assert.Equal(t, 1, primary.calls())
		assert.Equal(t, 2, backup.calls())
	})

	t.Run("should stop on permanent errors", func(t *testing.T) {
		primary := &fakeProvider{
			name: ProviderAnthropic,
			errs: []error{&ServiceError{Provider: ProviderAnthropic, StatusCode: 401, Message: "bad key"}},
		}
		backup := &fakeProvider{name: ProviderOpenAI, replies: []string{"x"}}
		factory := &fakeFactory{providers: map[string]*fakeProvider{"primary": primary, "backup": backup}}
		r := newTestReasoner(t, factory, &fakeClock{now: time.Unix(0, 0)},
			AuthProfile{ID: "primary", Provider: ProviderAnthropic, Priority: 1},
			AuthProfile{ID: "backup", Provider: ProviderOpenAI, Priority: 2},
		)

		_, err := r.Complete(context.Background(), "p")
		var svcErr *ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, 401, svcErr.StatusCode)
		assert.Equal(t, 0, backup.calls())
	})

	t.Run("should treat an empty reply as a service error", func(t *testing.T) {
		p := &fakeProvider{name: ProviderOpenAI, replies: []string{"   "}}
		factory := &fakeFactory{providers: map[string]*fakeProvider{"only": p}}
		r := newTestReasoner(t, factory, &fakeClock{now: time.Unix(0, 0)},
			AuthProfile{ID: "only", Provider: ProviderOpenAI},
		)

		_, err := r.Complete(context.Background(), "p")
		assert.ErrorIs(t, err, ErrEmptyResponse)
		var svcErr *ServiceError
		assert.ErrorAs(t, err, &svcErr)
	})

	t.Run("should still try a lone profile that is cooling down", func(t *testing.T) {
		p := &fakeProvider{
			name:    ProviderOpenAI,
			errs:    []error{errors.New("connection refused"), nil},
			replies: []string{"ACTION: explore"},
		}
		factory := &fakeFactory{providers: map[string]*fakeProvider{"only": p}}
		r := newTestReasoner(t, factory, &fakeClock{now: time.Unix(0, 0)},
			AuthProfile{ID: "only", Provider: ProviderOpenAI},
		)

		_, err := r.Complete(context.Background(), "p")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "all auth profiles failed")

		reply, err := r.Complete(context.Background(), "p")
		require.NoError(t, err)
		assert.Equal(t, "ACTION: explore", reply)
		assert.Equal(t, 0, r.Profiles()[0].FailureCount)
		assert.Nil(t, r.Profiles()[0].CooldownUntil)
	})

	t.Run("should cache providers per profile", func(t *testing.T) {
		p := &fakeProvider{name: ProviderOpenAI, replies: []string{"a", "b"}}
		factory := &fakeFactory{providers: map[string]*fakeProvider{"only": p}}
		r := newTestReasoner(t, factory, &fakeClock{now: time.Unix(0, 0)},
			AuthProfile{ID: "only", Provider: ProviderOpenAI, APIKey: "sk-secret"},
		)

		_, _ = r.Complete(context.Background(), "p")
		_, _ = r.Complete(context.Background(), "p")
		assert.Equal(t, 1, factory.created)
		assert.Equal(t, "***", r.Profiles()[0].APIKey)
	})
}
