package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects the controller/event-stream counters and gauges that
// back the ConversationManager's fleet-level view; State.MetricsSnapshot
// reads State's own fields, not these collectors.
// Built once at ConversationManager.init (spec.md §9, "explicit
// process-scoped registries") and passed down by reference; never a
// package global, so tests can register independent instances.
type Metrics struct {
	ActionsDispatched  *prometheus.CounterVec
	ObservationsEmitted *prometheus.CounterVec
	ErrorsByKind       *prometheus.CounterVec
	Confirmations      *prometheus.CounterVec
	Iterations         prometheus.Histogram
	BudgetSpent        prometheus.Histogram
	ActiveConversations prometheus.Gauge
}

// NewMetrics registers a fresh set of collectors against registry. Pass
// prometheus.NewRegistry() in tests to avoid colliding with other tests'
// default-registry registrations.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActionsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrt",
			Name:      "actions_dispatched_total",
			Help:      "Actions dispatched to a Runtime, by kind.",
		}, []string{"kind"}),
		ObservationsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrt",
			Name:      "observations_emitted_total",
			Help:      "Observations appended to an EventStream, by kind.",
		}, []string{"kind"}),
		ErrorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrt",
			Name:      "errors_total",
			Help:      "Errors encountered by the controller, by error kind.",
		}, []string{"kind"}),
		Confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrt",
			Name:      "confirmations_total",
			Help:      "Confirmation decisions, by outcome (accept/reject).",
		}, []string{"outcome"}),
		Iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agentrt",
			Name:      "controller_iterations",
			Help:      "Iterations consumed per controller run.",
			Buckets:   prometheus.LinearBuckets(1, 5, 20),
		}),
		BudgetSpent: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agentrt",
			Name:      "controller_budget_spent",
			Help:      "Budget spent per controller run.",
		}),
		ActiveConversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentrt",
			Name:      "active_conversations",
			Help:      "Conversations currently held by the ConversationManager.",
		}),
	}
	registry.MustRegister(
		m.ActionsDispatched,
		m.ObservationsEmitted,
		m.ErrorsByKind,
		m.Confirmations,
		m.Iterations,
		m.BudgetSpent,
		m.ActiveConversations,
	)
	return m
}
