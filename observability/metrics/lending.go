package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics tracks batch execution and the protocol events that matter to
// operators watching market health.
type LendingMetrics struct {
	batches       *prometheus.CounterVec
	batchLatency  prometheus.Histogram
	operations    *prometheus.CounterVec
	liquidations  *prometheus.CounterVec
	badDebt       *prometheus.CounterVec
	flashLoans    *prometheus.CounterVec
	subscriberErr *prometheus.CounterVec
}

// HTTPMetrics captures request outcomes on the API surface.
type HTTPMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics

	httpOnce     sync.Once
	httpRegistry *HTTPMetrics
)

// Lending returns the lazily registered ledger metrics.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			batches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "isolend",
				Subsystem: "ledger",
				Name:      "batches_total",
				Help:      "Count of executed batches segmented by outcome and error kind.",
			}, []string{"outcome", "kind"}),
			batchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "isolend",
				Subsystem: "ledger",
				Name:      "batch_duration_seconds",
				Help:      "Latency distribution for batch execution including commit.",
				Buckets:   prometheus.DefBuckets,
			}),
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "isolend",
				Subsystem: "ledger",
				Name:      "events_total",
				Help:      "Count of committed events segmented by type.",
			}, []string{"type"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "isolend",
				Subsystem: "lending",
				Name:      "liquidations_total",
				Help:      "Count of committed liquidations per market.",
			}, []string{"market"}),
			badDebt: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "isolend",
				Subsystem: "lending",
				Name:      "bad_debt_events_total",
				Help:      "Count of bad debt write-offs per market.",
			}, []string{"market"}),
			flashLoans: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "isolend",
				Subsystem: "lending",
				Name:      "flash_loans_total",
				Help:      "Count of flash loan phases per market.",
			}, []string{"market", "phase"}),
			subscriberErr: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "isolend",
				Subsystem: "ledger",
				Name:      "subscriber_errors_total",
				Help:      "Count of receipt deliveries a subscriber failed to accept.",
			}, []string{"subscriber"}),
		}
		prometheus.MustRegister(
			lendingRegistry.batches,
			lendingRegistry.batchLatency,
			lendingRegistry.operations,
			lendingRegistry.liquidations,
			lendingRegistry.badDebt,
			lendingRegistry.flashLoans,
			lendingRegistry.subscriberErr,
		)
	})
	return lendingRegistry
}

// ObserveBatch records a batch outcome. kind is empty for committed batches.
func (m *LendingMetrics) ObserveBatch(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "committed"
	if kind != "" {
		outcome = "rejected"
	} else {
		kind = "none"
	}
	m.batches.WithLabelValues(outcome, kind).Inc()
	m.batchLatency.Observe(duration.Seconds())
}

// ObserveEvent counts a committed event and feeds the per-market counters.
func (m *LendingMetrics) ObserveEvent(eventType string, attrs map[string]string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(eventType).Inc()
	market := attrs["market"]
	switch {
	case strings.HasSuffix(eventType, ".liquidate"):
		m.liquidations.WithLabelValues(market).Inc()
	case strings.HasSuffix(eventType, ".bad_debt"):
		m.badDebt.WithLabelValues(market).Inc()
	case strings.HasSuffix(eventType, ".flash_loan"):
		m.flashLoans.WithLabelValues(market, attrs["phase"]).Inc()
	}
}

// RecordSubscriberError counts a failed receipt delivery.
func (m *LendingMetrics) RecordSubscriberError(name string) {
	if m == nil {
		return
	}
	m.subscriberErr.WithLabelValues(name).Inc()
}

// BatchCounter exposes the batch counter for assertions.
func (m *LendingMetrics) BatchCounter() *prometheus.CounterVec { return m.batches }

// EventCounter exposes the committed event counter for assertions.
func (m *LendingMetrics) EventCounter() *prometheus.CounterVec { return m.operations }

// LiquidationCounter exposes the liquidation counter for assertions.
func (m *LendingMetrics) LiquidationCounter() *prometheus.CounterVec { return m.liquidations }

// HTTP returns the lazily registered API metrics.
func HTTP() *HTTPMetrics {
	httpOnce.Do(func() {
		httpRegistry = &HTTPMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "isolend",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total API requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "isolend",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "isolend",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.latency,
			httpRegistry.throttles,
		)
	})
	return httpRegistry
}

// Observe records the outcome of an API request. status should be the code
// ultimately written to the client.
func (m *HTTPMetrics) Observe(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *HTTPMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// RequestCounter exposes the request counter for assertions.
func (m *HTTPMetrics) RequestCounter() *prometheus.CounterVec { return m.requests }
