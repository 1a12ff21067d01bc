// Package metrics exposes Prometheus collectors for the radar service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal              *prometheus.CounterVec
	fetchDurationSeconds      *prometheus.HistogramVec
	fetchRetriesTotal         *prometheus.CounterVec
	inflightFetches           prometheus.Gauge
	listingsSavedTotal        *prometheus.CounterVec
	extractStrategyHitsTotal  *prometheus.CounterVec
	sessionTransitionsTotal   *prometheus.CounterVec
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDurationSecond *prometheus.HistogramVec

	once sync.Once
)

// Init registers the Prometheus collectors. Every observer calls it, so
// explicit initialization is only needed to register before first use.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_fetches_total",
				Help: "Total listing fetches, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "radar_fetch_duration_seconds",
				Help:    "Histogram of end-to-end fetch latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"source"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_fetch_retries_total",
				Help: "Total fetch retries, labeled by reason.",
			},
			[]string{"reason"},
		)

		inflightFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "radar_inflight_fetches",
				Help: "Number of fetches currently holding a concurrency slot.",
			},
		)

		listingsSavedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_listings_saved_total",
				Help: "Total listings written to the store, labeled by source.",
			},
			[]string{"source"},
		)

		extractStrategyHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_extract_strategy_hits_total",
				Help: "Extraction strategy successes, labeled by strategy.",
			},
			[]string{"strategy"},
		)

		sessionTransitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_session_transitions_total",
				Help: "Session state transitions, labeled by target state.",
			},
			[]string{"state"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one completed fetch attempt chain.
func ObserveFetch(source, outcome string, duration time.Duration) {
	Init()
	fetchesTotal.WithLabelValues(source, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveRetry counts one scheduled retry.
func ObserveRetry(reason string) {
	Init()
	fetchRetriesTotal.WithLabelValues(reason).Inc()
}

// IncInflight increments the in-flight fetch gauge.
func IncInflight() {
	Init()
	inflightFetches.Inc()
}

// DecInflight decrements the in-flight fetch gauge.
func DecInflight() {
	Init()
	inflightFetches.Dec()
}

// ObserveSaved counts listings persisted to the store.
func ObserveSaved(source string, count int) {
	Init()
	if count > 0 {
		listingsSavedTotal.WithLabelValues(source).Add(float64(count))
	}
}

// ObserveStrategyHit counts one extraction strategy contributing fields.
func ObserveStrategyHit(strategy string) {
	Init()
	extractStrategyHitsTotal.WithLabelValues(strategy).Inc()
}

// ObserveSessionTransition counts one session state change.
func ObserveSessionTransition(state string) {
	Init()
	sessionTransitionsTotal.WithLabelValues(state).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecond.WithLabelValues(method, route).Observe(duration.Seconds())
}
