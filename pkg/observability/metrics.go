package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/gocare/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "gocare"

// Metrics holds the orchestrator's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	RoleEntries        *prometheus.CounterVec
	Transitions        *prometheus.CounterVec
	ToolCalls          *prometheus.CounterVec
	ToolDuration       *prometheus.HistogramVec
	SecurityViolations *prometheus.CounterVec
	Turns              *prometheus.CounterVec
	TurnDuration       *prometheus.HistogramVec
	SessionsActive     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on a private registry
// together with the Go and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RoleEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_entries_total",
			Help:      "Number of times each role was entered",
		}, []string{"role"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed role transitions",
		}, []string{"from", "to"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "Identity and data store calls",
		}, []string{"tool", "status"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "Identity and data store call latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"tool"}),
		SecurityViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_violations_total",
			Help:      "Utterances refused by the security filter",
		}, []string{"role"}),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Processed turns by role and outcome",
		}, []string{"role", "outcome"}),
		TurnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Turn processing latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"role"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Live conversation sessions",
		}),
	}
	m.registry.MustRegister(
		m.RoleEntries, m.Transitions, m.ToolCalls, m.ToolDuration,
		m.SecurityViolations, m.Turns, m.TurnDuration, m.SessionsActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks that update the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRoleEnter: func(_ context.Context, e *domain.RoleEvent) {
			m.RoleEntries.WithLabelValues(e.Role.String()).Inc()
		},
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			m.Transitions.WithLabelValues(e.From.String(), e.To.String()).Inc()
		},
		OnToolReturn: func(_ context.Context, e *domain.ToolEvent) {
			status := "ok"
			if e.IsError {
				status = "error"
			}
			m.ToolCalls.WithLabelValues(e.ToolName, status).Inc()
			m.ToolDuration.WithLabelValues(e.ToolName).Observe(e.Duration.Seconds())
		},
		OnSecurityViolation: func(_ context.Context, e *domain.SecurityEvent) {
			m.SecurityViolations.WithLabelValues(e.Role.String()).Inc()
		},
		OnTurn: func(_ context.Context, e *domain.TurnEvent) {
			m.Turns.WithLabelValues(e.Role.String(), e.Outcome).Inc()
			m.TurnDuration.WithLabelValues(e.Role.String()).Observe(e.Duration.Seconds())
		},
	}
}
