// Package metrics exposes Prometheus collectors for workflow activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"projectflow/backend/internal/events"
)

const namespace = "projectflow"

// Metrics holds the service's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	instancesCreated   prometheus.Counter
	instancesCompleted prometheus.Counter
	transitions        *prometheus.CounterVec
	transitionsFailed  *prometheus.CounterVec
	ruleEvaluations    prometheus.Counter
	rulesTriggered     prometheus.Counter
	evaluationDuration prometheus.Histogram
}

// New creates the collectors and registers them, plus the Go and process
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		instancesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_created_total",
			Help:      "Total number of workflow instances created",
		}),
		instancesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_completed_total",
			Help:      "Total number of workflow instances completed",
		}),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total number of successful stage transitions by target stage",
			},
			[]string{"to_stage"},
		),
		transitionsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_rejected_total",
				Help:      "Total number of rejected stage transitions by error code",
			},
			[]string{"code"},
		),
		ruleEvaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_evaluations_total",
			Help:      "Total number of rule evaluations",
		}),
		rulesTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_triggered_total",
			Help:      "Total number of rules triggered across all evaluations",
		}),
		evaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rule_evaluation_duration_seconds",
			Help:      "Histogram of rule evaluation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.instancesCreated,
		m.instancesCompleted,
		m.transitions,
		m.transitionsFailed,
		m.ruleEvaluations,
		m.rulesTriggered,
		m.evaluationDuration,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordTransitionRejected counts a transition refused with code.
func (m *Metrics) RecordTransitionRejected(code string) {
	if m == nil {
		return
	}
	m.transitionsFailed.WithLabelValues(code).Inc()
}

// RecordEvaluationDuration observes the wall time of one rule evaluation.
func (m *Metrics) RecordEvaluationDuration(seconds float64) {
	if m == nil {
		return
	}
	m.evaluationDuration.Observe(seconds)
}

// Attach subscribes the collectors to bus.
func (m *Metrics) Attach(bus *events.Bus) {
	if m == nil {
		return
	}
	bus.SubscribeAll(m.handle)
}

func (m *Metrics) handle(e *events.Event) {
	switch e.Type {
	case events.InstanceCreated:
		m.instancesCreated.Inc()
	case events.InstanceTransitioned:
		m.transitions.WithLabelValues(e.ToStage).Inc()
	case events.InstanceCompleted:
		m.instancesCompleted.Inc()
	case events.RulesEvaluated:
		m.ruleEvaluations.Inc()
		m.rulesTriggered.Add(float64(len(e.Triggered)))
	}
}
