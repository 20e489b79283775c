// Package metrics provides Prometheus metrics for the temperature-alignment gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Validation outcomes
	validationFailures *prometheus.CounterVec
	datasetRows        prometheus.Histogram

	// Engine
	engineEvaluations prometheus.Counter
	engineErrors      *prometheus.CounterVec
	engineLatency     prometheus.Histogram
	portfolioCoverage prometheus.Histogram

	// Worker pool / supervision
	workerRestarts *prometheus.CounterVec
	workerUp       *prometheus.GaugeVec

	// Reverse proxy
	proxyRejected *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tempalign",
		subsystem:        "gateway",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint, method and status",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.validationFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "validation_failures_total",
			Help:      "Rejected requests by validation error kind",
		},
		[]string{"kind"},
	)

	m.datasetRows = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dataset_rows",
		Help:      "Row counts of accepted portfolio datasets",
		Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
	})

	m.engineEvaluations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "engine_evaluations_total",
		Help:      "Total number of completed engine evaluations",
	})

	m.engineErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "engine_errors_total",
			Help:      "Engine failures by kind (semantic vs internal)",
		},
		[]string{"kind"},
	)

	m.engineLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "engine_latency_milliseconds",
		Help:      "Histogram of engine evaluation latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.portfolioCoverage = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "portfolio_coverage_ratio",
		Help:      "Coverage ratio of completed assessments",
		Buckets:   []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1},
	})

	m.workerRestarts = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "worker_restarts_total",
			Help:      "Worker process restarts by pool slot",
		},
		[]string{"slot"},
	)

	m.workerUp = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "worker_up",
			Help:      "Per-slot worker liveness as seen by the supervisor (1 healthy, 0 not)",
		},
		[]string{"slot"},
	)

	m.proxyRejected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "proxy_rejected_total",
			Help:      "Requests rejected at the proxy before reaching a worker",
		},
		[]string{"reason"},
	)
}

// Package-level helpers recording on the global manager.

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

func RecordValidationFailure(kind string) {
	globalManager.validationFailures.WithLabelValues(kind).Inc()
}

func RecordDatasetRows(rows int) {
	globalManager.datasetRows.Observe(float64(rows))
}

func RecordEngineEvaluation(latencyMs float64) {
	globalManager.engineEvaluations.Inc()
	globalManager.engineLatency.Observe(latencyMs)
}

func RecordEngineError(kind string) {
	globalManager.engineErrors.WithLabelValues(kind).Inc()
}

func RecordPortfolioCoverage(ratio float64) {
	globalManager.portfolioCoverage.Observe(ratio)
}

func RecordWorkerRestart(slot string) {
	globalManager.workerRestarts.WithLabelValues(slot).Inc()
}

func SetWorkerUp(slot string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	globalManager.workerUp.WithLabelValues(slot).Set(v)
}

func RecordProxyRejection(reason string) {
	globalManager.proxyRejected.WithLabelValues(reason).Inc()
}

// GetRegistry returns the custom registry serving /healthz scrapes.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
