// Package metrics provides Prometheus instrumentation for the relay and the
// identifier extractor.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fiscalflow"

// Relay outcome labels.
const (
	OutcomeStreamingText  = "streaming_text"
	OutcomeJSONEnvelope   = "json_envelope"
	OutcomeHTMLError      = "html_error"
	OutcomeUpstreamError  = "upstream_error"
	OutcomeTimeout        = "timeout"
	OutcomeInvalidRequest = "invalid_request"
	OutcomeTransportError = "transport_error"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing,
// so packages can be used without instrumentation in tests.
type Metrics struct {
	RelayRequestsTotal   *prometheus.CounterVec
	RelayDuration        *prometheus.HistogramVec
	StreamBytesTotal     prometheus.Counter
	ExtractionsTotal     *prometheus.CounterVec
	TurnsInFlight        prometheus.Gauge
	ConversationListings *prometheus.CounterVec
}

// New creates and registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RelayRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "requests_total",
				Help:      "Relay calls by classified outcome",
			},
			[]string{"outcome"},
		),
		RelayDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "response_seconds",
				Help:      "Time until the remote agent answered with headers",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		StreamBytesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "stream_bytes_total",
				Help:      "Bytes forwarded from the remote agent to callers",
			},
		),
		ExtractionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "extract",
				Name:      "attempts_total",
				Help:      "Report identifier extractions by strategy and result",
			},
			[]string{"strategy", "result"},
		),
		TurnsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "chat",
				Name:      "turns_in_flight",
				Help:      "Turns currently streaming",
			},
		),
		ConversationListings: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "history",
				Name:      "reads_total",
				Help:      "Chat log reads by operation and status",
			},
			[]string{"operation", "status"},
		),
	}
}

// ObserveRelay records one relay call.
func (m *Metrics) ObserveRelay(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RelayRequestsTotal.WithLabelValues(outcome).Inc()
	m.RelayDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// AddStreamBytes counts forwarded bytes.
func (m *Metrics) AddStreamBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.StreamBytesTotal.Add(float64(n))
}

// ObserveExtraction records one recogniser attempt.
func (m *Metrics) ObserveExtraction(strategy, result string) {
	if m == nil {
		return
	}
	m.ExtractionsTotal.WithLabelValues(strategy, result).Inc()
}

// TurnStarted and TurnFinished bracket a streaming turn.
func (m *Metrics) TurnStarted() {
	if m == nil {
		return
	}
	m.TurnsInFlight.Inc()
}

func (m *Metrics) TurnFinished() {
	if m == nil {
		return
	}
	m.TurnsInFlight.Dec()
}

// ObserveHistoryRead records a chat log read.
func (m *Metrics) ObserveHistoryRead(operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ConversationListings.WithLabelValues(operation, status).Inc()
}
