package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts webhook deliveries and reconciliations. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Deliveries      *prometheus.CounterVec
	Reconciliations *prometheus.CounterVec
	StaleDeletes    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailjet_webhook_deliveries_total",
				Help: "Total number of Mailjet callback requests by outcome",
			},
			[]string{"outcome"},
		),
		Reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailjet_webhook_reconciliations_total",
				Help: "Total number of webhook reconciliations by outcome",
			},
			[]string{"outcome"},
		),
		StaleDeletes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailjet_webhook_stale_deletes_total",
				Help: "Total number of stale webhook registrations deleted by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) delivery(outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) reconciliation(outcome string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) staleDelete(outcome string) {
	if m == nil {
		return
	}
	m.StaleDeletes.WithLabelValues(outcome).Inc()
}
