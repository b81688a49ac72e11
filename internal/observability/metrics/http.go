package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/workspace-search/internal/core/domain"
)

const namespace = "wsearch"

// HTTPServerMetrics owns the API registry. Besides HTTP traffic it records the search
// pipeline through the SearchObserver methods.
type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	searchTotal      *prometheus.CounterVec
	searchResults    prometheus.Histogram
	searchDuration   *prometheus.HistogramVec
	strategyTotal    *prometheus.CounterVec
	strategyHits     *prometheus.HistogramVec
	strategyDuration *prometheus.HistogramVec
	fallbackTotal    *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	searchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Total search requests by outcome.",
		},
		[]string{"service", "outcome"},
	)
	searchResults := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "search",
			Name:        "results",
			Help:        "Distribution of returned results per search.",
			Buckets:     []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "End-to-end search duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)
	strategyTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "strategy_runs_total",
			Help:      "Retrieval strategy executions by status.",
		},
		[]string{"service", "strategy", "status"},
	)
	strategyHits := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "strategy_hits",
			Help:      "Candidates returned per retrieval strategy.",
			Buckets:   []float64{0, 1, 5, 10, 20, 40, 80},
		},
		[]string{"service", "strategy"},
	)
	strategyDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "strategy_duration_seconds",
			Help:      "Retrieval strategy duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "strategy"},
	)
	fallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "fallbacks_total",
			Help:      "Pipeline stages that fell back to their input.",
		},
		[]string{"service", "stage"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dependency",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per upstream operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		searchTotal,
		searchResults,
		searchDuration,
		strategyTotal,
		strategyHits,
		strategyDuration,
		fallbackTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:         registry,
		service:          service,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		searchTotal:      searchTotal,
		searchResults:    searchResults,
		searchDuration:   searchDuration,
		strategyTotal:    strategyTotal,
		strategyHits:     strategyHits,
		strategyDuration: strategyDuration,
		fallbackTotal:    fallbackTotal,
		breakerState:     breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registerer lets other collectors share the /metrics endpoint.
func (m *HTTPServerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch path {
	case "/v1/search", "/healthz", "/metrics":
		return path
	default:
		return "other"
	}
}

func (m *HTTPServerMetrics) ObserveSearch(outcome string, results int, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.searchTotal.WithLabelValues(m.service, outcome).Inc()
	m.searchDuration.WithLabelValues(m.service, outcome).Observe(duration.Seconds())
	if outcome == "ok" || outcome == "empty" {
		m.searchResults.Observe(float64(results))
	}
}

func (m *HTTPServerMetrics) ObserveStrategy(strategy string, hits int, err error, duration time.Duration) {
	m.strategyTotal.WithLabelValues(m.service, strategy, strategyStatus(err)).Inc()
	m.strategyDuration.WithLabelValues(m.service, strategy).Observe(duration.Seconds())
	if err == nil {
		m.strategyHits.WithLabelValues(m.service, strategy).Observe(float64(hits))
	}
}

func (m *HTTPServerMetrics) ObserveFallback(stage string) {
	m.fallbackTotal.WithLabelValues(m.service, stage).Inc()
}

// ObserveBreakerState matches resilience.StateObserver.
func (m *HTTPServerMetrics) ObserveBreakerState(operation, state string) {
	var value float64
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}

func strategyStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrTemporary):
		return "unavailable"
	default:
		return "error"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
