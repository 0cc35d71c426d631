package decision

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harun/craftpilot/pkg/state"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	prompts []string
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

func (s *stubCompleter) set(reply string, err error) {
	s.mu.Lock()
	s.reply, s.err = reply, err
	s.mu.Unlock()
}

func (s *stubCompleter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestEngine(t *testing.T, completer Completer) (*Engine, *state.Store, *testClock) {
	t.Helper()
	store, err := state.NewStore(state.Config{Logger: zerolog.Nop()})
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	engine, err := NewEngine(Config{
		Completer: completer,
		Errors:    store,
		Logger:    zerolog.Nop(),
		Now:       clock.Now,
	})
	require.NoError(t, err)
	return engine, store, clock
}

func TestNewEngine(t *testing.T) {
	t.Run("should require completer and counter", func(t *testing.T) {
		_, err := NewEngine(Config{})
		assert.Error(t, err)

		_, err = NewEngine(Config{Completer: &stubCompleter{}})
		assert.Error(t, err)
	})

	t.Run("should apply defaults", func(t *testing.T) {
		engine, _, _ := newTestEngine(t, &stubCompleter{})
		assert.Equal(t, DefaultMaxConsecutiveErrors, engine.ceiling)
		assert.Equal(t, DefaultBreakerCooldown, engine.cooldown)
		assert.Equal(t, DefaultTraceCapacity, engine.traceCap)
	})
}

func TestEngineDecide(t *testing.T) {
	t.Run("should parse a successful reply", func(t *testing.T) {
		completer := &stubCompleter{reply: "Wood first.\nACTION: mine oak_log"}
		engine, store, _ := newTestEngine(t, completer)

		plan := engine.Decide(context.Background(), store.SnapshotForDecision())
		assert.Equal(t, "mine oak_log", plan.Action)
		assert.Equal(t, SourceReasoning, plan.Source)
		assert.False(t, plan.CreatedAt.IsZero())
		assert.Equal(t, 1, completer.count())
		assert.Contains(t, completer.prompts[0], "ACTION: <command>")
	})

	t.Run("should hold and count errors when the call fails", func(t *testing.T) {
		completer := &stubCompleter{err: errors.New("503 service unavailable")}
		engine, store, _ := newTestEngine(t, completer)

		plan := engine.Decide(context.Background(), store.SnapshotForDecision())
		assert.Equal(t, "wait", plan.Action)
		assert.Equal(t, SourceHold, plan.Source)
		assert.Equal(t, 1, store.ConsecutiveErrors())
		assert.Equal(t, 1, completer.count(), "no synchronous retry")
	})

	t.Run("should treat a blank reply as a failure", func(t *testing.T) {
		completer := &stubCompleter{reply: "  \n "}
		engine, store, _ := newTestEngine(t, completer)

		plan := engine.Decide(context.Background(), store.SnapshotForDecision())
		assert.Equal(t, SourceHold, plan.Source)
		assert.Equal(t, 1, store.ConsecutiveErrors())

		traces := engine.Traces()
		require.Len(t, traces, 1)
		assert.Equal(t, ErrEmptyReply.Error(), traces[0].Error)
	})

	t.Run("should open the breaker after five failures and reset on success", func(t *testing.T) {
		completer := &stubCompleter{err: errors.New("connection refused")}
		engine, store, clock := newTestEngine(t, completer)

		for i := 0; i < DefaultMaxConsecutiveErrors; i++ {
			engine.Decide(context.Background(), store.SnapshotForDecision())
		}
		require.Equal(t, 5, store.ConsecutiveErrors())
		require.Equal(t, 5, completer.count())
		assert.True(t, engine.BreakerOpen())

		plan := engine.Decide(context.Background(), store.SnapshotForDecision())
		assert.Equal(t, SourceBreaker, plan.Source)
		assert.Equal(t, "mine oak_log", plan.Action)
		assert.Equal(t, 5, completer.count(), "breaker must bypass the service")

		clock.Advance(30 * time.Second)
		engine.Decide(context.Background(), store.SnapshotForDecision())
		assert.Equal(t, 5, completer.count())

		// Cooldown elapsed: one trial call goes out and its success closes the breaker.
		clock.Advance(31 * time.Second)
		completer.set("ACTION: explore", nil)
		plan = engine.Decide(context.Background(), store.SnapshotForDecision())
		assert.Equal(t, 6, completer.count())
		assert.Equal(t, "explore", plan.Action)
		assert.Equal(t, 0, store.ConsecutiveErrors())
		assert.False(t, engine.BreakerOpen())
	})

	t.Run("should re-arm the breaker when the trial call fails", func(t *testing.T) {
		completer := &stubCompleter{err: errors.New("timeout")}
		engine, store, clock := newTestEngine(t, completer)

		for i := 0; i < DefaultMaxConsecutiveErrors; i++ {
			engine.Decide(context.Background(), store.SnapshotForDecision())
		}
		clock.Advance(61 * time.Second)

		plan := engine.Decide(context.Background(), store.SnapshotForDecision())
		assert.Equal(t, SourceHold, plan.Source)
		assert.Equal(t, 6, completer.count())
		assert.True(t, engine.BreakerOpen())

		plan = engine.Decide(context.Background(), store.SnapshotForDecision())
		assert.Equal(t, SourceBreaker, plan.Source)
		assert.Equal(t, 6, completer.count())
	})

	t.Run("should include recent plans in the next prompt", func(t *testing.T) {
		completer := &stubCompleter{reply: "Need wood.\nACTION: mine oak_log"}
		engine, store, _ := newTestEngine(t, completer)

		engine.Decide(context.Background(), store.SnapshotForDecision())
		engine.Decide(context.Background(), store.SnapshotForDecision())

		assert.NotContains(t, completer.prompts[0], "Your recent plans")
		assert.Contains(t, completer.prompts[1], "- mine oak_log (Need wood.)")
	})
}

func TestEngineTraces(t *testing.T) {
	completer := &stubCompleter{reply: "ACTION: explore"}
	store, err := state.NewStore(state.Config{Logger: zerolog.Nop()})
	require.NoError(t, err)

	engine, err := NewEngine(Config{Completer: completer, Errors: store, TraceCapacity: 3, Logger: zerolog.Nop()})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		engine.Decide(context.Background(), store.SnapshotForDecision())
	}

	traces := engine.Traces()
	require.Len(t, traces, 3)
	for _, tr := range traces {
		assert.NotEmpty(t, tr.ID)
		assert.True(t, strings.HasPrefix(tr.Prompt, "You are an autonomous agent"))
		assert.Equal(t, "explore", tr.Plan.Action)
	}

	traces[0].Plan.Action = "mutated"
	assert.Equal(t, "explore", engine.Traces()[0].Plan.Action)
}

func TestFallback(t *testing.T) {
	tests := []struct {
		name string
		snap state.Snapshot
		want string
	}{
		{"low health wins", state.Snapshot{HealthPoints: 5, Phase: state.PhaseEarly}, "wait 5"},
		{"early phase gathers", state.Snapshot{HealthPoints: 20, Phase: state.PhaseEarly}, "mine oak_log"},
		{"later phases explore", state.Snapshot{HealthPoints: 20, Phase: state.PhaseLate}, "explore"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fallback(tt.snap).Action)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	snap := state.Snapshot{
		Position:       "1.0, 64.0, 2.0",
		Health:         "4/20",
		Hunger:         "18/20",
		HealthPoints:   4,
		InventoryCount: 0,
		Inventory:      "empty",
		Phase:          state.PhaseEarly,
		CanSurvive:     false,
		RecentChat:     []string{"steve: hi"},
	}

	prompt := BuildPrompt(snap, nil)
	assert.Equal(t, prompt, BuildPrompt(snap, nil), "prompt must be deterministic")
	assert.Contains(t, prompt, "- Position: 1.0, 64.0, 2.0")
	assert.Contains(t, prompt, "- Time: night")
	assert.Contains(t, prompt, "WARNING")
	assert.Contains(t, prompt, "steve: hi")
	assert.Contains(t, prompt, "- none yet")
	assert.Contains(t, prompt, "move <north|south|east|west|forward|back> [blocks]")
}
