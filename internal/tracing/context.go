package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// CycleIDKey is the context key for the control loop cycle ID
	CycleIDKey ContextKey = "cycle_id"
	// OriginKey is the context key for who requested an action ("loop", "manual")
	OriginKey ContextKey = "origin"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID string
	CycleID string
	Origin  string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewCycleID generates a new cycle ID
func NewCycleID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithCycleID adds a cycle ID to the context
func WithCycleID(ctx context.Context, cycleID string) context.Context {
	return context.WithValue(ctx, CycleIDKey, cycleID)
}

// WithOrigin records which caller path started the work
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, OriginKey, origin)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetCycleID retrieves the cycle ID from the context
func GetCycleID(ctx context.Context) string {
	if cycleID, ok := ctx.Value(CycleIDKey).(string); ok {
		return cycleID
	}
	return ""
}

// GetOrigin retrieves the origin from the context
func GetOrigin(ctx context.Context) string {
	if origin, ok := ctx.Value(OriginKey).(string); ok {
		return origin
	}
	return ""
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID: GetTraceID(ctx),
		CycleID: GetCycleID(ctx),
		Origin:  GetOrigin(ctx),
	}
}

// NewCycleContext starts a fresh trace for one control loop cycle
func NewCycleContext(ctx context.Context) context.Context {
	ctx = WithTraceID(ctx, NewTraceID())
	ctx = WithCycleID(ctx, NewCycleID())
	return WithOrigin(ctx, "loop")
}

// NewManualContext starts a fresh trace for an out-of-band command
func NewManualContext(ctx context.Context) context.Context {
	ctx = WithTraceID(ctx, NewTraceID())
	return WithOrigin(ctx, "manual")
}
