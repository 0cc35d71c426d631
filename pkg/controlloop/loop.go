// Package controlloop drives the observe, decide, act cycle.
//
// One goroutine runs cycles back to back with an interval sleep between
// them. Cycle work runs on a context detached from Run's cancellation, so
// stopping never aborts an action mid-flight; it only prevents the next one.
package controlloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/craftpilot/internal/observability"
	"github.com/harun/craftpilot/internal/tracing"
	"github.com/harun/craftpilot/pkg/decision"
	"github.com/harun/craftpilot/pkg/executor"
	"github.com/harun/craftpilot/pkg/session"
	"github.com/harun/craftpilot/pkg/state"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	DefaultInterval      = 10 * time.Second
	DefaultErrorCooldown = 5 * time.Second
	DefaultSyncSchedule  = "@every 30s"

	// staleAfter is how long the world state may go without an update before
	// the sync job warns about it.
	staleAfter = 2 * time.Minute
)

var (
	ErrAlreadyRunning = errors.New("control loop already running")
	ErrEmptyPlan      = errors.New("decision produced an empty action")
)

// Phase is the loop's current activity.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseDeciding  Phase = "deciding"
	PhaseExecuting Phase = "executing"
	PhaseSleeping  Phase = "sleeping"
	PhaseCooldown  Phase = "cooldown"
	PhaseStopped   Phase = "stopped"
)

// Decider picks the next plan from a snapshot.
type Decider interface {
	Decide(ctx context.Context, snap state.Snapshot) decision.Plan
}

// Executor runs one command.
type Executor interface {
	Execute(ctx context.Context, command string) executor.Result
}

// SessionFault reports that the game session went away. Run returns it so
// the caller can exit non-zero.
type SessionFault struct {
	Event  session.Event
	Reason string
}

func (f *SessionFault) Error() string {
	return fmt.Sprintf("session %s: %s", f.Event, f.Reason)
}

// Config configures a Loop.
type Config struct {
	Session  session.Session
	Store    *state.Store
	Decider  Decider
	Executor Executor

	Interval      time.Duration
	ErrorCooldown time.Duration
	// WaitForSpawn holds the first cycle until the spawn event arrives.
	WaitForSpawn bool
	// SyncSchedule is a cron spec for the periodic sync job. Empty uses
	// DefaultSyncSchedule; "off" disables it.
	SyncSchedule string

	Logger zerolog.Logger
	Now    func() time.Time
}

// Status is a point-in-time view of the loop.
type Status struct {
	Phase        Phase            `json:"phase"`
	Running      bool             `json:"running"`
	Interval     time.Duration    `json:"interval"`
	Cycles       int64            `json:"cycles"`
	FailedCycles int64            `json:"failed_cycles"`
	StartedAt    time.Time        `json:"started_at,omitempty"`
	LastCycleAt  time.Time        `json:"last_cycle_at,omitempty"`
	LastPlan     *decision.Plan   `json:"last_plan,omitempty"`
	LastResult   *executor.Result `json:"last_result,omitempty"`
	LastError    string           `json:"last_error,omitempty"`
}

// Loop is the agent's main control loop.
type Loop struct {
	session  session.Session
	store    *state.Store
	decider  Decider
	executor Executor

	errorCooldown time.Duration
	waitForSpawn  bool
	syncSchedule  string
	logger        zerolog.Logger
	now           func() time.Time

	interval atomic.Int64
	running  atomic.Bool
	cycles   atomic.Int64
	failed   atomic.Int64

	mu          sync.RWMutex
	phase       Phase
	startedAt   time.Time
	lastCycleAt time.Time
	lastPlan    *decision.Plan
	lastResult  *executor.Result
	lastError   string

	wake      chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
	faults    chan *SessionFault
	spawned   chan struct{}
	spawnOnce sync.Once

	cronMu sync.Mutex
	cron   *cron.Cron
}

// New creates a loop. Run starts it.
func New(cfg Config) (*Loop, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Decider == nil {
		return nil, fmt.Errorf("decider is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	cooldown := cfg.ErrorCooldown
	if cooldown <= 0 {
		cooldown = DefaultErrorCooldown
	}
	schedule := strings.TrimSpace(cfg.SyncSchedule)
	if schedule == "" {
		schedule = DefaultSyncSchedule
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	l := &Loop{
		session:       cfg.Session,
		store:         cfg.Store,
		decider:       cfg.Decider,
		executor:      cfg.Executor,
		errorCooldown: cooldown,
		waitForSpawn:  cfg.WaitForSpawn,
		syncSchedule:  schedule,
		logger:        cfg.Logger,
		now:           now,
		phase:         PhaseIdle,
		wake:          make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		faults:        make(chan *SessionFault, 1),
		spawned:       make(chan struct{}),
	}
	l.interval.Store(int64(interval))
	return l, nil
}

// Run binds session events and cycles until Stop, ctx cancellation or a
// session fault. Only a fault produces a non-nil error.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer l.running.Store(false)
	defer l.setPhase(PhaseStopped)

	unbind := l.bindEvents()
	defer unbind()

	l.mu.Lock()
	l.startedAt = l.now()
	l.mu.Unlock()

	if l.waitForSpawn && !l.store.State().Spawned {
		l.logger.Info().Msg("Waiting for spawn")
		select {
		case <-l.spawned:
		case fault := <-l.faults:
			return fault
		case <-l.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		}
	}

	if err := l.startSync(); err != nil {
		return err
	}
	defer l.stopSync()

	l.logger.Info().
		Dur("interval", l.Interval()).
		Msg("Control loop started")

	for {
		if fault := l.pendingFault(); fault != nil {
			return fault
		}
		if l.stopped() || ctx.Err() != nil {
			l.logger.Info().Msg("Control loop stopping")
			return nil
		}

		wait := l.Interval
		phase := PhaseSleeping
		if err := l.cycle(ctx); err != nil {
			l.failed.Add(1)
			l.setLastError(err)
			observability.RecordLoopCycle(false)
			l.logger.Error().Err(err).Dur("cooldown", l.errorCooldown).Msg("Cycle failed")
			wait = func() time.Duration { return l.errorCooldown }
			phase = PhaseCooldown
		} else {
			observability.RecordLoopCycle(true)
		}

		l.setPhase(phase)
		if fault := l.sleep(ctx, wait); fault != nil {
			return fault
		}
	}
}

// Stop ends Run after the in-flight cycle, if any, completes.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		l.stopSync()
		l.logger.Info().Msg("Control loop stop requested")
	})
}

// SetInterval changes the sleep between cycles. A sleep in progress is
// re-evaluated against the new interval.
func (l *Loop) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	l.interval.Store(int64(d))
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Interval returns the current sleep between cycles.
func (l *Loop) Interval() time.Duration {
	return time.Duration(l.interval.Load())
}

// Status returns a copy of the loop's status.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := Status{
		Phase:        l.phase,
		Running:      l.running.Load(),
		Interval:     l.Interval(),
		Cycles:       l.cycles.Load(),
		FailedCycles: l.failed.Load(),
		StartedAt:    l.startedAt,
		LastCycleAt:  l.lastCycleAt,
		LastError:    l.lastError,
	}
	if l.lastPlan != nil {
		plan := *l.lastPlan
		st.LastPlan = &plan
	}
	if l.lastResult != nil {
		result := *l.lastResult
		st.LastResult = &result
	}
	return st
}

// cycle runs one snapshot, decide, execute pass.
func (l *Loop) cycle(parent context.Context) (err error) {
	ctx := tracing.NewCycleContext(context.WithoutCancel(parent))
	logger := tracing.LoggerFromContext(ctx, l.logger)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()

	l.cycles.Add(1)
	l.setPhase(PhaseDeciding)
	snap := l.store.SnapshotForDecision()
	plan := l.decider.Decide(ctx, snap)

	l.mu.Lock()
	l.lastPlan = &plan
	l.lastCycleAt = l.now()
	l.mu.Unlock()

	if strings.TrimSpace(plan.Action) == "" {
		return ErrEmptyPlan
	}

	l.setPhase(PhaseExecuting)
	result := l.executor.Execute(ctx, plan.Action)

	l.mu.Lock()
	l.lastResult = &result
	l.lastError = ""
	l.mu.Unlock()

	ws := l.store.State()
	observability.SetVitals(ws.Health, ws.Hunger)

	logger.Info().
		Str("action", plan.Action).
		Str("source", string(plan.Source)).
		Bool("success", result.Success).
		Str("result", result.Message).
		Msg("Cycle complete")
	return nil
}

// sleep waits for the duration returned by d, re-reading it when woken by
// SetInterval. It returns a fault if one arrives while waiting.
func (l *Loop) sleep(ctx context.Context, d func() time.Duration) *SessionFault {
	start := l.now()
	for {
		remaining := d() - l.now().Sub(start)
		if remaining <= 0 {
			return nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-timer.C:
			return nil
		case <-l.wake:
			timer.Stop()
		case fault := <-l.faults:
			timer.Stop()
			return fault
		case <-l.stopCh:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}

func (l *Loop) startSync() error {
	if strings.EqualFold(l.syncSchedule, "off") {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(l.syncSchedule, l.syncState); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", l.syncSchedule, err)
	}

	l.cronMu.Lock()
	defer l.cronMu.Unlock()
	if l.stopped() {
		return nil
	}
	l.cron = c
	c.Start()
	return nil
}

func (l *Loop) stopSync() {
	l.cronMu.Lock()
	c := l.cron
	l.cron = nil
	l.cronMu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// syncState is the periodic job: it republishes vitals and flags a world
// view that has stopped receiving updates.
func (l *Loop) syncState() {
	ws := l.store.State()
	observability.SetVitals(ws.Health, ws.Hunger)

	age := l.now().Sub(ws.LastUpdate)
	if age > staleAfter {
		l.logger.Warn().Dur("age", age).Msg("World state is stale")
	}

	st := l.Status()
	l.logger.Debug().
		Str("phase", string(st.Phase)).
		Int64("cycles", st.Cycles).
		Int64("failed_cycles", st.FailedCycles).
		Int("health", ws.Health).
		Int("hunger", ws.Hunger).
		Str("game_phase", string(ws.GamePhase)).
		Msg("State sync")
}

func (l *Loop) setPhase(p Phase) {
	l.mu.Lock()
	l.phase = p
	l.mu.Unlock()
}

func (l *Loop) setLastError(err error) {
	l.mu.Lock()
	l.lastError = err.Error()
	l.mu.Unlock()
}

func (l *Loop) stopped() bool {
	select {
	case <-l.stopCh:
		return true
	default:
		return false
	}
}

func (l *Loop) pendingFault() *SessionFault {
	select {
	case fault := <-l.faults:
		return fault
	default:
		return nil
	}
}

// fault records the first session fault; later ones are dropped.
func (l *Loop) fault(event session.Event, reason string) {
	f := &SessionFault{Event: event, Reason: reason}
	select {
	case l.faults <- f:
		l.logger.Error().Str("event", string(event)).Str("reason", reason).Msg("Session fault")
	default:
	}
}
