package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/gosuda/fiscalflow/internal/metrics"
)

func TestNilMetricsAreNoops(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveRelay(metrics.OutcomeTimeout, time.Second)
		m.AddStreamBytes(10)
		m.ObserveExtraction("patterns", "found")
		m.TurnStarted()
		m.TurnFinished()
		m.ObserveHistoryRead("list", nil)
	})
}

func TestObserveRelay(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	m.ObserveRelay(metrics.OutcomeHTMLError, 2*time.Second)
	m.ObserveRelay(metrics.OutcomeHTMLError, time.Second)
	m.ObserveRelay(metrics.OutcomeTimeout, 5*time.Minute)

	assert.InDelta(t, 2, testutil.ToFloat64(m.RelayRequestsTotal.WithLabelValues(metrics.OutcomeHTMLError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RelayRequestsTotal.WithLabelValues(metrics.OutcomeTimeout)), 0)
}

func TestTurnsInFlight(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	m.TurnStarted()
	m.TurnStarted()
	m.TurnFinished()

	assert.InDelta(t, 1, testutil.ToFloat64(m.TurnsInFlight), 0)
}

func TestObserveHistoryRead(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	m.ObserveHistoryRead("list", nil)
	m.ObserveHistoryRead("list", errors.New("boom"))
	m.ObserveHistoryRead("transcript", nil)

	assert.InDelta(t, 1, testutil.ToFloat64(m.ConversationListings.WithLabelValues("list", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ConversationListings.WithLabelValues("list", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ConversationListings.WithLabelValues("transcript", "success")), 0)
}
