package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PurchaseAccepted()
	m.PurchaseSucceeded()
	m.PurchaseFailed()
	m.PurchaseFailed()
	m.Refund(true)
	m.Refund(false)
	m.ReconciliationAlert()
	m.StatusTransition("FINISHED")
	m.SetQueueDepth(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.purchasesAccepted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.purchasesCompleted.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refunds.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciliationAlerts))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PurchaseAccepted()
		m.PurchaseFailed()
		m.Refund(false)
		m.ReconciliationAlert()
		m.SetQueueDepth(1)
	})
}
