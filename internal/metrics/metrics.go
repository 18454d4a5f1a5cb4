// Package metrics exposes Prometheus collectors for the reader service.
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
	readerRequestsTotal        *prometheus.CounterVec
	readerCacheEventsTotal     *prometheus.CounterVec
	readerFetchDurationSeconds *prometheus.HistogramVec
	readerBrowserLaunchesTotal prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		readerRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reader_requests_total",
				Help: "Total number of resolve calls, labeled by engine and outcome.",
			},
			[]string{"engine", "outcome"},
		)

		readerCacheEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reader_cache_events_total",
				Help: "Result cache lookups and stores, labeled by event.",
			},
			[]string{"event"},
		)

		readerFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reader_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by engine.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"engine"},
		)

		readerBrowserLaunchesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "reader_browser_launches_total",
				Help: "Total number of headless browser processes launched.",
			},
		)

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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveResolve counts one resolve call.
func ObserveResolve(engine, outcome string) {
	Init()
	readerRequestsTotal.WithLabelValues(engine, outcome).Inc()
}

// ObserveCacheEvent counts a cache hit, miss or store.
func ObserveCacheEvent(event string) {
	Init()
	readerCacheEventsTotal.WithLabelValues(event).Inc()
}

// ObserveFetch records how long an engine took to return HTML.
func ObserveFetch(engine string, duration time.Duration) {
	Init()
	readerFetchDurationSeconds.WithLabelValues(engine).Observe(duration.Seconds())
}

// IncBrowserLaunches counts a browser launch.
func IncBrowserLaunches() {
	Init()
	readerBrowserLaunchesTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
