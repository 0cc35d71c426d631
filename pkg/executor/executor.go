// Package executor runs agent commands against the session, one at a time.
//
// Invariants:
// - At most one command handler runs at any instant. A call made while
//   another is in flight returns a "Busy" result immediately.
// - Every handler is raced against a timeout. When the timeout wins, the
//   handler's context is cancelled so it stops sending, and the busy flag is
//   released.
// - Every dispatched call, including unknown commands, leaves exactly one
//   history entry. Busy rejections leave none.
package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/craftpilot/internal/observability"
	"github.com/harun/craftpilot/internal/tracing"
	"github.com/harun/craftpilot/pkg/action"
	"github.com/harun/craftpilot/pkg/session"
	"github.com/harun/craftpilot/pkg/state"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultStepDelay   = 150 * time.Millisecond
	DefaultStepSize    = 1.0
	DefaultMaxSteps    = 32
	DefaultMaxDistance = 64.0

	// BusyMessage is the result message for rejected concurrent calls.
	BusyMessage = "Busy"
)

// ErrTimeout marks a handler that did not finish within the action timeout.
var ErrTimeout = errors.New("action timed out")

// StateStore is the part of the state store the executor reads and writes.
type StateStore interface {
	State() state.WorldState
	Update(u state.Update)
	AddToHistory(action string, outcome state.Outcome, detail string) state.HistoryEntry
}

// Config holds executor configuration
type Config struct {
	Sender      session.Sender
	Store       StateStore
	Timeout     time.Duration
	StepDelay   time.Duration
	StepSize    float64
	MaxSteps    int
	MaxDistance float64
	Rand        *rand.Rand
	Logger      zerolog.Logger
}

// Result is the terminal value of one Execute call.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// failure is a handler-level refusal ("no food in inventory"). It is
// recorded as a failed action, unlike transport errors and timeouts.
type failure struct {
	reason string
}

func (f *failure) Error() string { return f.reason }

func failf(format string, args ...any) error {
	return &failure{reason: fmt.Sprintf(format, args...)}
}

type handlerResult struct {
	message string
	err     error
}

// Executor is the single-flight action runner.
type Executor struct {
	sender      session.Sender
	store       StateStore
	timeout     time.Duration
	stepDelay   time.Duration
	stepSize    float64
	maxSteps    int
	maxDistance float64
	logger      zerolog.Logger

	randMu sync.Mutex
	rand   *rand.Rand

	busy     atomic.Bool
	failures atomic.Int64
}

// New creates a new executor
func New(cfg Config) (*Executor, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	e := &Executor{
		sender:      cfg.Sender,
		store:       cfg.Store,
		timeout:     cfg.Timeout,
		stepDelay:   cfg.StepDelay,
		stepSize:    cfg.StepSize,
		maxSteps:    cfg.MaxSteps,
		maxDistance: cfg.MaxDistance,
		rand:        cfg.Rand,
		logger:      cfg.Logger,
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.stepDelay <= 0 {
		e.stepDelay = DefaultStepDelay
	}
	if e.stepSize <= 0 {
		e.stepSize = DefaultStepSize
	}
	if e.maxSteps <= 0 {
		e.maxSteps = DefaultMaxSteps
	}
	if e.maxDistance <= 0 {
		e.maxDistance = DefaultMaxDistance
	}
	if e.rand == nil {
		e.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return e, nil
}

// IsBusy reports whether a command is in flight.
func (e *Executor) IsBusy() bool {
	return e.busy.Load()
}

// ConsecutiveFailures returns the number of non-successful calls since the
// last success.
func (e *Executor) ConsecutiveFailures() int {
	return int(e.failures.Load())
}

// Execute runs one command. It never blocks behind another call.
func (e *Executor) Execute(ctx context.Context, command string) Result {
	if !e.busy.CompareAndSwap(false, true) {
		observability.RecordBusyRejection(tracing.GetOrigin(ctx))
		return Result{Success: false, Message: BusyMessage}
	}
	defer e.busy.Store(false)

	parsed := action.Parse(command)
	ctx, span := tracing.StartSpan(ctx, "craftpilot.executor", "executor.execute",
		attribute.String("command", parsed.Command.String()),
		attribute.String("raw", parsed.Raw),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, e.logger).With().Str("command", parsed.Raw).Logger()

	if parsed.Command == action.Unknown {
		msg := fmt.Sprintf("Unknown command: %s", parsed.Token)
		e.failures.Add(1)
		e.store.AddToHistory(parsed.Raw, state.OutcomeFailure, msg)
		observability.RecordAction(parsed.Command.String(), string(state.OutcomeFailure), 0)
		logger.Warn().Msg("Unknown command")
		return Result{Success: false, Message: msg}
	}

	start := time.Now()
	outcome, message := e.run(ctx, parsed)
	duration := time.Since(start)

	e.store.AddToHistory(parsed.Raw, outcome, message)
	observability.RecordAction(parsed.Command.String(), string(outcome), duration)

	if outcome == state.OutcomeSuccess {
		e.failures.Store(0)
		logger.Info().Dur("duration", duration).Str("result", message).Msg("Action completed")
		return Result{Success: true, Message: message}
	}

	e.failures.Add(1)
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	logger.Warn().
		Dur("duration", duration).
		Str("outcome", string(outcome)).
		Str("result", message).
		Msg("Action did not succeed")
	return Result{Success: false, Message: message}
}

// run races the handler against the timeout.
func (e *Executor) run(ctx context.Context, parsed action.Parsed) (state.Outcome, string) {
	actionCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	done := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- handlerResult{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		msg, err := e.dispatch(actionCtx, parsed)
		done <- handlerResult{message: msg, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return state.OutcomeSuccess, res.message
		}
		var f *failure
		if errors.As(res.err, &f) {
			return state.OutcomeFailure, f.reason
		}
		if errors.Is(res.err, context.DeadlineExceeded) && actionCtx.Err() != nil && ctx.Err() == nil {
			return state.OutcomeError, timeoutMessage(e.timeout)
		}
		return state.OutcomeError, res.err.Error()

	case <-actionCtx.Done():
		if ctx.Err() != nil {
			return state.OutcomeError, fmt.Sprintf("Action cancelled: %v", ctx.Err())
		}
		return state.OutcomeError, timeoutMessage(e.timeout)
	}
}

func timeoutMessage(d time.Duration) string {
	return fmt.Sprintf("%s after %s", ErrTimeout.Error(), d)
}

// dispatch selects the handler for a known command.
func (e *Executor) dispatch(ctx context.Context, p action.Parsed) (string, error) {
	switch p.Command {
	case action.Move:
		return e.handleMove(ctx, p, false)
	case action.Jump:
		return e.handleMove(ctx, p, true)
	case action.Mine:
		return e.handleMine(ctx, p)
	case action.Explore:
		return e.handleExplore(ctx, p)
	case action.Attack:
		return e.handleAttack(ctx, p)
	case action.Chat:
		return e.handleChat(ctx, p)
	case action.Wait:
		return e.handleWait(ctx, p)
	case action.Craft:
		return e.handleCraft(ctx, p)
	case action.Combat:
		return e.handleCombat(ctx, p)
	case action.Build:
		return e.handleBuild(ctx, p)
	case action.Eat:
		return e.handleEat(ctx, p)
	case action.Sleep:
		return e.handleSleep(ctx, p)
	default:
		return "", fmt.Errorf("no handler for %s", p.Command)
	}
}

// send writes one command unless the action has been abandoned.
func (e *Executor) send(ctx context.Context, name string, payload session.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.sender.Send(name, payload); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	return nil
}

// pause waits for d or until the action is abandoned.
func (e *Executor) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// look orients the agent and records the new rotation.
func (e *Executor) look(ctx context.Context, yaw, pitch float64) error {
	if err := e.send(ctx, "look", session.Payload{"yaw": yaw, "pitch": pitch}); err != nil {
		return err
	}
	e.store.Update(state.Update{Rotation: &state.Rotation{Yaw: yaw, Pitch: pitch}})
	return nil
}

func (e *Executor) intn(n int) int {
	e.randMu.Lock()
	defer e.randMu.Unlock()
	return e.rand.Intn(n)
}
