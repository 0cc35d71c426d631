package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := getMetrics()

	t.Run("reasoning calls", func(t *testing.T) {
		before := testutil.ToFloat64(m.reasoningTotal.WithLabelValues("anthropic", "error"))
		RecordReasoningCall("anthropic", 120*time.Millisecond, false)
		assert.Equal(t, before+1, testutil.ToFloat64(m.reasoningTotal.WithLabelValues("anthropic", "error")))

		SetProviderCooldown("anthropic", true)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.providerCooldown.WithLabelValues("anthropic")))
		SetProviderCooldown("anthropic", false)
		assert.Equal(t, 0.0, testutil.ToFloat64(m.providerCooldown.WithLabelValues("anthropic")))
	})

	t.Run("decisions", func(t *testing.T) {
		RecordDecision("fallback", 5, true)
		assert.Equal(t, 5.0, testutil.ToFloat64(m.consecutiveErrors))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerOpen))

		RecordDecision("reasoning", 0, false)
		assert.Equal(t, 0.0, testutil.ToFloat64(m.consecutiveErrors))
		assert.Equal(t, 0.0, testutil.ToFloat64(m.breakerOpen))
	})

	t.Run("actions", func(t *testing.T) {
		before := testutil.ToFloat64(m.actionsTotal.WithLabelValues("move", "success"))
		RecordAction("move", "success", time.Second)
		assert.Equal(t, before+1, testutil.ToFloat64(m.actionsTotal.WithLabelValues("move", "success")))

		RecordBusyRejection("")
		assert.GreaterOrEqual(t, testutil.ToFloat64(m.busyRejections.WithLabelValues("unknown")), 1.0)
	})

	t.Run("loop and vitals", func(t *testing.T) {
		before := testutil.ToFloat64(m.loopCycles.WithLabelValues("success"))
		RecordLoopCycle(true)
		assert.Equal(t, before+1, testutil.ToFloat64(m.loopCycles.WithLabelValues("success")))

		SetVitals(14, 9)
		assert.Equal(t, 14.0, testutil.ToFloat64(m.health))
		assert.Equal(t, 9.0, testutil.ToFloat64(m.hunger))
	})
}

func TestMetricsHandler(t *testing.T) {
	RecordLoopCycle(false)

	srv := httptest.NewServer(MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "craftpilot_loop_cycles_total")
}
