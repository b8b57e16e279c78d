// Package metrics holds the service's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flightservice"

type Metrics struct {
	purchasesAccepted    prometheus.Counter
	purchasesCompleted   *prometheus.CounterVec
	refunds              *prometheus.CounterVec
	reconciliationAlerts prometheus.Counter
	statusTransitions    *prometheus.CounterVec
	queueDepth           prometheus.Gauge
}

// New registers the collectors on reg. A nil reg creates unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		purchasesAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_accepted_total",
			Help:      "Purchase requests accepted for asynchronous processing.",
		}),
		purchasesCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_completed_total",
			Help:      "Purchase attempts finished by the worker, by result.",
		}, []string{"result"}),
		refunds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refund calls to the balance service, by result.",
		}, []string{"result"}),
		reconciliationAlerts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_alerts_total",
			Help:      "Balance deductions that have no persisted ticket.",
		}),
		statusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flight_status_transitions_total",
			Help:      "Flight status changes, by target status.",
		}, []string{"to"}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "purchase_queue_depth",
			Help:      "Purchase jobs waiting for a worker.",
		}),
	}
}

func (m *Metrics) PurchaseAccepted() {
	if m == nil {
		return
	}
	m.purchasesAccepted.Inc()
}

func (m *Metrics) PurchaseSucceeded() {
	if m == nil {
		return
	}
	m.purchasesCompleted.WithLabelValues("success").Inc()
}

func (m *Metrics) PurchaseFailed() {
	if m == nil {
		return
	}
	m.purchasesCompleted.WithLabelValues("failed").Inc()
}

func (m *Metrics) Refund(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.refunds.WithLabelValues(result).Inc()
}

func (m *Metrics) ReconciliationAlert() {
	if m == nil {
		return
	}
	m.reconciliationAlerts.Inc()
}

func (m *Metrics) StatusTransition(to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
