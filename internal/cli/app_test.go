package cli

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harun/craftpilot/internal/config"
	"github.com/harun/craftpilot/pkg/controlloop"
	"github.com/harun/craftpilot/pkg/dashboard"
	"github.com/harun/craftpilot/pkg/executor"
	"github.com/harun/craftpilot/pkg/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedCompleter struct {
	mu    sync.Mutex
	reply string
	calls int
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.reply, nil
}

func (s *scriptedCompleter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.AI.Profiles = []config.AIProfile{
		{ID: "primary", Provider: "anthropic", APIKey: "sk-ant-test"},
	}
	cfg.Session.Offline = true
	cfg.Loop.Interval = 5 * time.Millisecond
	cfg.Loop.ErrorCooldown = 5 * time.Millisecond
	cfg.Loop.SyncSchedule = "off"
	cfg.Executor.StepDelay = time.Millisecond
	cfg.Dashboard.Enabled = false
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) (*app, *session.Memory, *scriptedCompleter) {
	t.Helper()
	mem := session.NewMemory()
	completer := &scriptedCompleter{reply: "Someone is nearby. ACTION: chat hello"}

	a, err := newApp(context.Background(), cfg, zerolog.Nop(), appOptions{
		Session:   mem,
		Completer: completer,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.close() })
	return a, mem, completer
}

func TestNewApp(t *testing.T) {
	t.Run("wires components", func(t *testing.T) {
		a, _, _ := newTestApp(t, testConfig())
		assert.NotNil(t, a.store)
		assert.NotNil(t, a.executor)
		assert.NotNil(t, a.engine)
		assert.NotNil(t, a.loop)
		assert.Nil(t, a.server)
		assert.Equal(t, 5*time.Millisecond, a.loop.Interval())
	})

	t.Run("dashboard enabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.Dashboard.Enabled = true
		cfg.Dashboard.Port = 18420
		a, _, _ := newTestApp(t, cfg)
		require.NotNil(t, a.server)
		assert.Equal(t, "127.0.0.1:18420", a.server.Addr())
	})

	t.Run("reasoner needs profiles", func(t *testing.T) {
		cfg := testConfig()
		cfg.AI.Profiles = nil
		_, err := newApp(context.Background(), cfg, zerolog.Nop(), appOptions{Session: session.NewMemory()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create reasoner")
	})

	t.Run("invalid history capacity", func(t *testing.T) {
		cfg := testConfig()
		cfg.State.HistoryCapacity = 5000
		_, err := newApp(context.Background(), cfg, zerolog.Nop(), appOptions{Session: session.NewMemory()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "state store")
	})

	t.Run("offline builds a memory session", func(t *testing.T) {
		a, err := newApp(context.Background(), testConfig(), zerolog.Nop(), appOptions{
			Completer: &scriptedCompleter{reply: "ACTION: wait 1"},
		})
		require.NoError(t, err)
		defer a.close()
		_, ok := a.session.(*session.Memory)
		assert.True(t, ok)
	})
}

func TestAppRun(t *testing.T) {
	t.Run("cycles until cancelled", func(t *testing.T) {
		a, mem, completer := newTestApp(t, testConfig())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- a.run(ctx) }()

		assert.Eventually(t, func() bool {
			return len(mem.CommandsNamed("chat")) >= 2
		}, 2*time.Second, 5*time.Millisecond)
		assert.GreaterOrEqual(t, completer.count(), 2)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("run did not return after cancel")
		}

		history := a.store.History()
		require.NotEmpty(t, history)
		assert.Equal(t, "chat hello", history[0].Action)
	})

	t.Run("session fault ends run", func(t *testing.T) {
		a, mem, _ := newTestApp(t, testConfig())

		done := make(chan error, 1)
		go func() { done <- a.run(context.Background()) }()

		var err error
		assert.Eventually(t, func() bool {
			mem.Emit(session.EventDisconnect, session.Payload{"reason": "server closed"})
			select {
			case err = <-done:
				return true
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond)

		var fault *controlloop.SessionFault
		require.True(t, errors.As(err, &fault))
		assert.Equal(t, session.EventDisconnect, fault.Event)
		assert.Equal(t, "server closed", fault.Reason)
	})

	t.Run("dashboard serves the running agent", func(t *testing.T) {
		cfg := testConfig()
		cfg.Dashboard.Enabled = true
		cfg.Dashboard.Token = "secret"
		cfg.Loop.Interval = time.Hour
		a, mem, _ := newTestApp(t, cfg)

		ts := httptest.NewServer(a.server.Handler())
		defer ts.Close()
		client := newDashboardClient(strings.TrimPrefix(ts.URL, "http://"), "secret")

		result, err := client.Command(context.Background(), "chat hi there")
		require.NoError(t, err)
		assert.True(t, result.Success)
		require.Len(t, mem.CommandsNamed("chat"), 1)
		assert.Equal(t, "hi there", mem.CommandsNamed("chat")[0].Payload["message"])

		status, err := client.Status(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 20, status.World.Health)
		assert.False(t, status.Busy)

		entries, err := client.History(context.Background(), 5)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "chat hi there", entries[0].Action)

		bad := newDashboardClient(strings.TrimPrefix(ts.URL, "http://"), "wrong")
		_, err = bad.Status(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})
}

func TestApplyConfig(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig())

	var levels []string
	a.setLevel = func(level string) { levels = append(levels, level) }

	next := testConfig()
	next.Loop.Interval = 3 * time.Second
	next.Logging.Level = "debug"
	a.applyConfig(next)
	assert.Equal(t, 3*time.Second, a.loop.Interval())
	assert.Equal(t, []string{"debug"}, levels)

	invalid := testConfig()
	invalid.AI.Profiles = nil
	invalid.Loop.Interval = time.Minute
	a.applyConfig(invalid)
	assert.Equal(t, 3*time.Second, a.loop.Interval(), "invalid reloads are ignored")
	assert.Len(t, levels, 1)
}

func TestAppWatchesConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "craftpilot.json")
	loader := config.NewLoader(path)

	cfg := testConfig()
	require.NoError(t, loader.Save(cfg))

	mem := session.NewMemory()
	cfg.Loop.Interval = time.Hour
	a, err := newApp(context.Background(), cfg, zerolog.Nop(), appOptions{
		Session:   mem,
		Completer: &scriptedCompleter{reply: "ACTION: wait 0.01"},
		Loader:    loader,
	})
	require.NoError(t, err)
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	updated := testConfig()
	updated.Loop.Interval = 7 * time.Second
	assert.Eventually(t, func() bool {
		_ = loader.Save(updated)
		return a.loop.Interval() == 7*time.Second
	}, 3*time.Second, 300*time.Millisecond)
}

func TestAuthProfiles(t *testing.T) {
	profiles := authProfiles([]config.AIProfile{
		{ID: "a", Provider: "openai", APIKey: "sk-1", Model: "gpt-4o", Priority: 2},
	})
	require.Len(t, profiles, 1)
	assert.Equal(t, "a", profiles[0].ID)
	assert.Equal(t, "openai", profiles[0].Provider)
	assert.Equal(t, "gpt-4o", profiles[0].Model)
	assert.Equal(t, 2, profiles[0].Priority)
}

func TestDashboardAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8420", dashboardAddr(config.DashboardConfig{}))
	assert.Equal(t, "127.0.0.1:9000", dashboardAddr(config.DashboardConfig{Host: "0.0.0.0", Port: 9000}))
	assert.Equal(t, "agent.local:8420", dashboardAddr(config.DashboardConfig{Host: "agent.local", Port: 8420}))
}

func TestPIDFile(t *testing.T) {
	dir := t.TempDir()
	path := pidFilePath(dir)
	assert.Equal(t, filepath.Join(dir, "craftpilot.pid"), path)
	assert.False(t, isRunning(path))

	require.NoError(t, writePIDFile(path))
	pid, err := readPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, isRunning(path))

	require.NoError(t, removePIDFile(path))
	assert.False(t, isRunning(path))
	assert.NoError(t, removePIDFile(path), "missing file is not an error")

	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))
	_, err = readPID(path)
	assert.Error(t, err)
}

func TestPrintStatusAndHistory(t *testing.T) {
	a, _, _ := newTestApp(t, testConfig())
	res := a.executor.Execute(context.Background(), "chat hello")
	require.True(t, res.Success)

	var buf strings.Builder
	printHistory(&buf, a.store.RecentHistory(5))
	assert.Contains(t, buf.String(), "chat hello")
	assert.Contains(t, buf.String(), "success")

	buf.Reset()
	printHistory(&buf, nil)
	assert.Equal(t, "No actions yet\n", buf.String())

	now := time.Now()
	status := a.loop.Status()
	status.StartedAt = now.Add(-90 * time.Second)
	status.LastResult = &executor.Result{Success: false, Message: "No food in inventory"}
	status.LastError = "empty plan"

	buf.Reset()
	printStatus(&buf, &dashboard.StatusResponse{
		Loop:        status,
		World:       a.store.State(),
		Busy:        true,
		BreakerOpen: true,
	}, now)
	out := buf.String()
	assert.Contains(t, out, "Uptime: 1m30s")
	assert.Contains(t, out, "Health: 20/20")
	assert.Contains(t, out, "Last result: failed: No food in inventory")
	assert.Contains(t, out, "Last error: empty plan")
	assert.Contains(t, out, "Executor: busy")
	assert.Contains(t, out, "circuit open")

	assert.Equal(t, "1h2m3s", formatDuration(time.Hour+2*time.Minute+3*time.Second))
	assert.Equal(t, "5m0s", formatDuration(5*time.Minute))
	assert.Equal(t, "42s", formatDuration(42*time.Second))
}
