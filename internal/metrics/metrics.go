// Package metrics exposes Prometheus collectors for attestation issuance,
// ledger anchoring and the HTTP API. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vouch"

type Metrics struct {
	AttestationsIssued *prometheus.CounterVec
	TrustScore         prometheus.Histogram
	LedgerSubmissions  *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers all collectors on reg. When reg is also a Gatherer, Handler
// serves it; otherwise Handler serves the default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		AttestationsIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attestations_issued_total",
				Help:      "Attestations stored, by verification tier.",
			},
			[]string{"tier"},
		),
		TrustScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "trust_score",
				Help:      "Trust score of issued attestations.",
				Buckets:   prometheus.LinearBuckets(0, 100, 11),
			},
		),
		LedgerSubmissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_submissions_total",
				Help:      "Ledger anchoring attempts, by result.",
			},
			[]string{"result"}, // result: ok, error
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		gatherer: prometheus.DefaultGatherer,
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// RecordIssued records one stored attestation.
func (m *Metrics) RecordIssued(tier string, score int) {
	if m == nil {
		return
	}
	m.AttestationsIssued.WithLabelValues(tier).Inc()
	m.TrustScore.Observe(float64(score))
}

// RecordLedger records an anchoring attempt.
func (m *Metrics) RecordLedger(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.LedgerSubmissions.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
