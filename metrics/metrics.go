// Package metrics collects Prometheus instrumentation for the orchestrator
// daemon. Grounded on the teacher's graph.PrometheusMetrics (graph/metrics.go):
// a single struct owning every collector, constructed with promauto.With(registry)
// against a caller-supplied registry, with nil-safe methods so components can
// be wired to a *Metrics that's nil in tests without branching at every call
// site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes gauges, counters, and histograms for the agent pool, the
// circuit breakers guarding agent dispatch, and the event log backends. All
// names are namespaced "orchestrator_".
type Metrics struct {
	poolAgents      *prometheus.GaugeVec
	poolAssignments *prometheus.CounterVec

	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec

	eventLogAppendLatency *prometheus.HistogramVec
	eventLogAppendErrors  *prometheus.CounterVec
}

// New constructs and registers every collector against registry. Pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for an isolated one (e.g. in tests, to avoid
// "duplicate metrics collector registration" panics across test runs).
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		poolAgents: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "pool",
			Name:      "agents",
			Help:      "Current number of agents in the pool by state (idle, working, unhealthy, shutting_down, terminated)",
		}, []string{"state"}),

		poolAssignments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "pool",
			Name:      "assignments_total",
			Help:      "Cumulative count of bead assignment attempts, by outcome (assigned, no_agent_available)",
		}, []string{"outcome"}),

		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
		}, []string{"name"}),

		breakerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Cumulative count of circuit breaker state transitions",
		}, []string{"name", "from", "to"}),

		eventLogAppendLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Subsystem: "eventlog",
			Name:      "append_duration_ms",
			Help:      "AppendEvent duration in milliseconds, including fsync for durable backends",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}, []string{"backend"}),

		eventLogAppendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "eventlog",
			Name:      "append_errors_total",
			Help:      "Cumulative count of failed AppendEvent calls, by backend",
		}, []string{"backend"}),
	}
}

// SetPoolAgentCounts replaces the pool_agents gauge's per-state values.
// Callers pass a full snapshot (one count per state) rather than
// incrementing/decrementing, since pool membership changes are driven by the
// pool's own lock, not by this package.
func (m *Metrics) SetPoolAgentCounts(counts map[string]int) {
	if m == nil {
		return
	}
	for state, count := range counts {
		m.poolAgents.WithLabelValues(state).Set(float64(count))
	}
}

// IncPoolAssignment records one AssignBead attempt under outcome.
func (m *Metrics) IncPoolAssignment(outcome string) {
	if m == nil {
		return
	}
	m.poolAssignments.WithLabelValues(outcome).Inc()
}

// breakerStateValue maps gobreaker's three states onto the fixed 0/1/2
// ordering documented on the state gauge's Help text.
func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default: // "closed"
		return 0
	}
}

// RecordBreakerTransition records a circuit breaker moving from one state to
// another, updating both the transitions counter and the current-state
// gauge.
func (m *Metrics) RecordBreakerTransition(name, from, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(name, from, to).Inc()
	m.breakerState.WithLabelValues(name).Set(breakerStateValue(to))
}

// RecordEventLogAppend records one AppendEvent call's duration for the named
// backend ("sqlite", "mysql"), and increments the error counter if err is
// non-nil.
func (m *Metrics) RecordEventLogAppend(backend string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.eventLogAppendLatency.WithLabelValues(backend).Observe(float64(d.Milliseconds()))
	if err != nil {
		m.eventLogAppendErrors.WithLabelValues(backend).Inc()
	}
}
