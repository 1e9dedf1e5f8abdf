// Package metrics exposes Prometheus collectors for the admission service's
// HTTP surface and queue gauges. Admission outcome counters live in the
// progress sinks.
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
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	discoveryQueueDepth        prometheus.Gauge
	scanIndexKeys              prometheus.Gauge
	hubDroppedEvents           prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
			[]string{"method", "route"},
		)

		discoveryQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "admission_discovery_queue_depth",
				Help: "Discovered links waiting for an admission worker.",
			},
		)

		scanIndexKeys = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "admission_scan_index_keys",
				Help: "Keys marked in the process-local scan index (approximate for bloom).",
			},
		)

		hubDroppedEvents = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "admission_progress_dropped_events",
				Help: "Outcome events dropped by the progress hub under backpressure.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetQueueDepth records the current discovery queue length.
func SetQueueDepth(n int) {
	discoveryQueueDepth.Set(float64(n))
}

// SetScanIndexKeys records the scan index size.
func SetScanIndexKeys(n uint) {
	scanIndexKeys.Set(float64(n))
}

// SetHubDropped records the progress hub's cumulative drop count.
func SetHubDropped(n int64) {
	hubDroppedEvents.Set(float64(n))
}
