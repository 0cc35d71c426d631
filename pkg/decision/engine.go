// Package decision turns a state snapshot into the agent's next plan.
//
// Decide never fails. A reply the parser cannot read degrades to a default
// explore, a failed reasoning call yields a short wait, and after too many
// consecutive failures the engine stops calling the service and answers from
// a deterministic fallback until a trial call succeeds.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/craftpilot/internal/observability"
	"github.com/harun/craftpilot/internal/tracing"
	"github.com/harun/craftpilot/pkg/state"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultMaxConsecutiveErrors = 5
	DefaultBreakerCooldown      = 60 * time.Second
	DefaultTraceCapacity        = 20
)

// ErrEmptyReply is recorded when the service answers with blank text.
var ErrEmptyReply = errors.New("empty reply from reasoning service")

// Completer is the reasoning capability.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ErrorCounter tracks consecutive reasoning failures.
type ErrorCounter interface {
	IncrementErrors() int
	ResetErrors()
	ConsecutiveErrors() int
}

// Config holds engine configuration
type Config struct {
	Completer            Completer
	Errors               ErrorCounter
	MaxConsecutiveErrors int
	BreakerCooldown      time.Duration
	TraceCapacity        int
	Logger               zerolog.Logger
	Now                  func() time.Time
}

// Engine produces one plan per decision cycle.
type Engine struct {
	completer Completer
	errors    ErrorCounter
	ceiling   int
	cooldown  time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	mu          sync.Mutex
	traces      []Trace
	traceCap    int
	lastFailure time.Time
}

// NewEngine creates a new decision engine
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if cfg.Errors == nil {
		return nil, fmt.Errorf("error counter is required")
	}

	e := &Engine{
		completer: cfg.Completer,
		errors:    cfg.Errors,
		ceiling:   cfg.MaxConsecutiveErrors,
		cooldown:  cfg.BreakerCooldown,
		traceCap:  cfg.TraceCapacity,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if e.ceiling <= 0 {
		e.ceiling = DefaultMaxConsecutiveErrors
	}
	if e.cooldown <= 0 {
		e.cooldown = DefaultBreakerCooldown
	}
	if e.traceCap <= 0 {
		e.traceCap = DefaultTraceCapacity
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.traces = make([]Trace, 0, e.traceCap)
	return e, nil
}

// Decide returns the next plan for the snapshot.
func (e *Engine) Decide(ctx context.Context, snap state.Snapshot) Plan {
	ctx, span := tracing.StartSpan(ctx, "craftpilot.decision", "decision.decide",
		attribute.String("phase", string(snap.Phase)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, e.logger)

	plan := e.decide(ctx, logger, snap)
	plan.CreatedAt = e.now()

	span.SetAttributes(
		attribute.String("plan.action", plan.Action),
		attribute.String("plan.source", string(plan.Source)),
	)
	observability.RecordDecision(string(plan.Source), e.errors.ConsecutiveErrors(), e.BreakerOpen())
	return plan
}

func (e *Engine) decide(ctx context.Context, logger zerolog.Logger, snap state.Snapshot) Plan {
	failures := e.errors.ConsecutiveErrors()
	if failures >= e.ceiling {
		if e.BreakerOpen() {
			plan := Fallback(snap)
			plan.Source = SourceBreaker
			e.addTrace(Trace{Plan: plan})
			logger.Debug().Int("consecutiveErrors", failures).Str("action", plan.Action).Msg("Breaker open, using fallback")
			return plan
		}
		logger.Info().Int("consecutiveErrors", failures).Msg("Breaker cooldown elapsed, probing reasoning service")
	}

	prompt := BuildPrompt(snap, e.recentPlans())
	reply, err := e.completer.Complete(ctx, prompt)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		n := e.errors.IncrementErrors()
		e.mu.Lock()
		e.lastFailure = e.now()
		e.mu.Unlock()

		plan := holdPlan(err.Error())
		e.addTrace(Trace{Prompt: prompt, Response: reply, Plan: plan, Error: err.Error()})
		logger.Warn().Err(err).Int("consecutiveErrors", n).Msg("Reasoning call failed")
		return plan
	}

	if failures > 0 {
		logger.Info().Int("consecutiveErrors", failures).Msg("Reasoning service recovered")
	}
	e.errors.ResetErrors()

	plan := ParseResponse(reply)
	e.addTrace(Trace{Prompt: prompt, Response: reply, Plan: plan})
	if plan.Source != SourceReasoning {
		logger.Debug().Str("source", string(plan.Source)).Str("action", plan.Action).Msg("Reply had no ACTION marker")
	}
	return plan
}

// BreakerOpen reports whether the engine is currently skipping the service.
func (e *Engine) BreakerOpen() bool {
	if e.errors.ConsecutiveErrors() < e.ceiling {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now().Sub(e.lastFailure) < e.cooldown
}

// Traces returns a copy of the decision log, oldest first.
func (e *Engine) Traces() []Trace {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Trace, len(e.traces))
	copy(out, e.traces)
	return out
}

func (e *Engine) addTrace(t Trace) {
	t.ID = uuid.New().String()
	t.Timestamp = e.now()
	if t.Plan.CreatedAt.IsZero() {
		t.Plan.CreatedAt = t.Timestamp
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.traces) >= e.traceCap {
		copy(e.traces, e.traces[1:])
		e.traces = e.traces[:len(e.traces)-1]
	}
	e.traces = append(e.traces, t)
}

func (e *Engine) recentPlans() []Plan {
	e.mu.Lock()
	defer e.mu.Unlock()

	plans := make([]Plan, 0, maxPromptPlans)
	for i := len(e.traces) - 1; i >= 0 && len(plans) < maxPromptPlans; i-- {
		if e.traces[i].Error != "" || e.traces[i].Plan.Source == SourceBreaker {
			continue
		}
		plans = append(plans, e.traces[i].Plan)
	}
	for i, j := 0, len(plans)-1; i < j; i, j = i+1, j-1 {
		plans[i], plans[j] = plans[j], plans[i]
	}
	return plans
}
