package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDs(t *testing.T) {
	assert.NotEmpty(t, NewTraceID())
	assert.NotEqual(t, NewTraceID(), NewTraceID())
	assert.NotEqual(t, NewCycleID(), NewCycleID())
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetCycleID(ctx))
	assert.Empty(t, GetOrigin(ctx))

	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithCycleID(ctx, "cycle-1")
	ctx = WithOrigin(ctx, "manual")

	tc := FromContext(ctx)
	assert.Equal(t, "trace-1", tc.TraceID)
	assert.Equal(t, "cycle-1", tc.CycleID)
	assert.Equal(t, "manual", tc.Origin)
}

func TestNewCycleContext(t *testing.T) {
	ctx := NewCycleContext(context.Background())
	assert.NotEmpty(t, GetTraceID(ctx))
	assert.NotEmpty(t, GetCycleID(ctx))
	assert.Equal(t, "loop", GetOrigin(ctx))

	manual := NewManualContext(context.Background())
	assert.NotEmpty(t, GetTraceID(manual))
	assert.Empty(t, GetCycleID(manual))
	assert.Equal(t, "manual", GetOrigin(manual))
}

func TestLoggerFromContext(t *testing.T) {
	t.Run("should attach tracing fields", func(t *testing.T) {
		var buf bytes.Buffer
		base := zerolog.New(&buf)

		ctx := WithCycleID(WithTraceID(context.Background(), "trace-9"), "cycle-9")
		logger := LoggerFromContext(ctx, base)
		logger.Info().Msg("hello")

		assert.Contains(t, buf.String(), `"trace_id":"trace-9"`)
		assert.Contains(t, buf.String(), `"cycle_id":"cycle-9"`)
	})

	t.Run("should return base logger without tracing values", func(t *testing.T) {
		var buf bytes.Buffer
		logger := LoggerFromContext(context.Background(), zerolog.New(&buf))
		logger.Info().Msg("plain")

		assert.NotContains(t, buf.String(), "trace_id")
	})
}

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test", "op")
	defer span.End()
	assert.NotNil(t, ctx)

	// No-op spans must tolerate failures too.
	FailSpan(span, errors.New("boom"))
	FailSpan(span, nil)
}

func TestInitOpenTelemetry(t *testing.T) {
	require.NoError(t, InitOpenTelemetry("craftpilot-test"))
	require.NoError(t, InitOpenTelemetry("ignored"), "repeat init is a no-op")

	_, span := StartSpan(context.Background(), "test", "recorded")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, ShutdownOpenTelemetry(context.Background()))
}
