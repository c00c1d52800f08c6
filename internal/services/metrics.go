package services

import (
	"github.com/prometheus/client_golang/prometheus"

	"dividi/internal/amqp"
)

// Metrics counts store writes and change events. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Created   prometheus.Counter
	Settled   prometheus.Counter
	Cleared   prometheus.Counter
	Failures  *prometheus.CounterVec
	Published *prometheus.CounterVec
	Exports   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dividi",
			Name:      "expenses_created_total",
			Help:      "Expenses recorded.",
		}),
		Settled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dividi",
			Name:      "expenses_settled_total",
			Help:      "Settle operations applied.",
		}),
		Cleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dividi",
			Name:      "expenses_cleared_total",
			Help:      "Clear-all operations applied.",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dividi",
			Name:      "operation_failures_total",
			Help:      "Failed write operations by operation.",
		}, []string{"op"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dividi",
			Name:      "change_events_published_total",
			Help:      "Change events published by kind.",
		}, []string{"kind"}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dividi",
			Name:      "exports_total",
			Help:      "Monthly report exports by format and outcome.",
		}, []string{"format", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Created, m.Settled, m.Cleared, m.Failures, m.Published, m.Exports)
	}
	return m
}

func (m *Metrics) created() {
	if m != nil {
		m.Created.Inc()
	}
}

func (m *Metrics) settled() {
	if m != nil {
		m.Settled.Inc()
	}
}

func (m *Metrics) cleared() {
	if m != nil {
		m.Cleared.Inc()
	}
}

func (m *Metrics) failed(op string) {
	if m != nil {
		m.Failures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) published(kind amqp.ChangeKind) {
	if m != nil {
		m.Published.WithLabelValues(string(kind)).Inc()
	}
}

// Exported counts one export attempt.
func (m *Metrics) Exported(format, outcome string) {
	if m != nil {
		m.Exports.WithLabelValues(format, outcome).Inc()
	}
}
