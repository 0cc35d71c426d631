package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "craftpilot"

type moduleMetrics struct {
	reasoningTotal    *prometheus.CounterVec
	reasoningDuration *prometheus.HistogramVec
	providerCooldown  *prometheus.GaugeVec

	decisionsTotal    *prometheus.CounterVec
	breakerOpen       prometheus.Gauge
	consecutiveErrors prometheus.Gauge

	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	busyRejections *prometheus.CounterVec

	loopCycles *prometheus.CounterVec
	health     prometheus.Gauge
	hunger     prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			reasoningTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "reasoning_calls_total",
					Help:      "Total reasoning service calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			reasoningDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "reasoning_call_duration_seconds",
					Help:      "Reasoning service call duration in seconds by provider.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			providerCooldown: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "provider_cooldown_active",
					Help:      "Provider cooldown active state (1 active, 0 inactive).",
				},
				[]string{"provider"},
			),
			decisionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "decisions_total",
					Help:      "Total decisions by plan source.",
				},
				[]string{"source"},
			),
			breakerOpen: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "decision_breaker_open",
					Help:      "Decision circuit breaker state (1 open, 0 closed).",
				},
			),
			consecutiveErrors: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "reasoning_consecutive_errors",
					Help:      "Current consecutive reasoning failure count.",
				},
			),
			actionsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "actions_total",
					Help:      "Total executed actions by command and outcome.",
				},
				[]string{"command", "outcome"},
			),
			actionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "action_duration_seconds",
					Help:      "Action execution duration in seconds by command.",
					Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
				},
				[]string{"command"},
			),
			busyRejections: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "executor_busy_rejections_total",
					Help:      "Execute calls rejected because an action was in flight, by origin.",
				},
				[]string{"origin"},
			),
			loopCycles: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "loop_cycles_total",
					Help:      "Control loop cycles by status.",
				},
				[]string{"status"},
			),
			health: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "agent_health",
					Help:      "Last observed agent health (0-20).",
				},
			),
			hunger: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "agent_hunger",
					Help:      "Last observed agent hunger (0-20).",
				},
			),
		}

		prometheus.MustRegister(
			m.reasoningTotal,
			m.reasoningDuration,
			m.providerCooldown,
			m.decisionsTotal,
			m.breakerOpen,
			m.consecutiveErrors,
			m.actionsTotal,
			m.actionDuration,
			m.busyRejections,
			m.loopCycles,
			m.health,
			m.hunger,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordReasoningCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.reasoningTotal.WithLabelValues(provider, status(success)).Inc()
	m.reasoningDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func SetProviderCooldown(provider string, active bool) {
	m := getMetrics()
	m.providerCooldown.WithLabelValues(provider).Set(boolGauge(active))
}

func RecordDecision(source string, consecutiveErrors int, breakerOpen bool) {
	m := getMetrics()
	m.decisionsTotal.WithLabelValues(source).Inc()
	m.consecutiveErrors.Set(float64(consecutiveErrors))
	m.breakerOpen.Set(boolGauge(breakerOpen))
}

func RecordAction(command, outcome string, duration time.Duration) {
	m := getMetrics()
	m.actionsTotal.WithLabelValues(command, outcome).Inc()
	m.actionDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func RecordBusyRejection(origin string) {
	if origin == "" {
		origin = "unknown"
	}
	getMetrics().busyRejections.WithLabelValues(origin).Inc()
}

func RecordLoopCycle(success bool) {
	getMetrics().loopCycles.WithLabelValues(status(success)).Inc()
}

func SetVitals(health, hunger int) {
	m := getMetrics()
	m.health.Set(float64(health))
	m.hunger.Set(float64(hunger))
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
