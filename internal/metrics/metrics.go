// Package metrics exposes Prometheus metrics for the kiosk.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Match results.
const (
	ResultMatched = "matched"
	ResultNoMatch = "no_match"
	ResultNoFace  = "no_face"
	ResultError   = "error"
)

const (
	defaultNS      = "kiosk"
	defaultTimeout = 10 * time.Second
)

// Manager owns the kiosk's collectors and the registry they live in.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	matches              *prometheus.CounterVec
	matchLatency         *prometheus.HistogramVec
	attendanceRecords    *prometheus.CounterVec
	attendanceFailures   prometheus.Counter
	enrollments          prometheus.Counter
	identities           prometheus.Gauge
	sessionTransitions   *prometheus.CounterVec
	httpRequests         *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	embeddingRequestErrs prometheus.Counter
}

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom buckets for latency histograms, in seconds.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegistry sets the registry metrics are registered on.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// NewManager creates and registers every collector on a fresh registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        defaultNS,
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initialize()
	return m
}

func (m *Manager) initialize() {
	auto := promauto.With(m.registry)

	m.matches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "matches_total",
		Help:      "Identification attempts by method and result",
	}, []string{"method", "result"})

	m.matchLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "match_duration_seconds",
		Help:      "Time spent resolving an input to an identity",
		Buckets:   m.histogramBuckets,
	}, []string{"method"})

	m.attendanceRecords = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "attendance_records_total",
		Help:      "Attendance records produced by method",
	}, []string{"method"})

	m.attendanceFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "attendance_write_failures_total",
		Help:      "Attendance records that could not be persisted",
	})

	m.enrollments = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "enrollments_total",
		Help:      "Identities created",
	})

	m.identities = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "identities",
		Help:      "Enrolled identities",
	})

	m.sessionTransitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "session_transitions_total",
		Help:      "Kiosk session state transitions",
	}, []string{"from", "to"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method"})

	m.embeddingRequestErrs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "embedding_errors_total",
		Help:      "Failed calls to the embedding service",
	})

	m.registry.MustRegister(collectors.NewGoCollector())
}

// Registry returns the registry holding the kiosk metrics.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Timeout: defaultTimeout})
}

// RecordMatch counts an identification attempt and its duration.
func (m *Manager) RecordMatch(method, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(method, result).Inc()
	m.matchLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RecordAttendance counts a produced attendance record.
func (m *Manager) RecordAttendance(method string) {
	if m == nil {
		return
	}
	m.attendanceRecords.WithLabelValues(method).Inc()
}

// RecordAttendanceFailure counts a record that was not persisted.
func (m *Manager) RecordAttendanceFailure() {
	if m == nil {
		return
	}
	m.attendanceFailures.Inc()
}

// RecordEnrollment counts a created identity.
func (m *Manager) RecordEnrollment() {
	if m == nil {
		return
	}
	m.enrollments.Inc()
}

// SetIdentities sets the enrolled identities gauge.
func (m *Manager) SetIdentities(n int) {
	if m == nil {
		return
	}
	m.identities.Set(float64(n))
}

// RecordTransition counts a session state change.
func (m *Manager) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.sessionTransitions.WithLabelValues(from, to).Inc()
}

// RecordHTTPRequest counts a served request.
func (m *Manager) RecordHTTPRequest(route, method, statusCode string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// RecordEmbeddingError counts a failed embedding service call.
func (m *Manager) RecordEmbeddingError() {
	if m == nil {
		return
	}
	m.embeddingRequestErrs.Inc()
}
