// Package metrics exposes Prometheus counters for feedback intake and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultNamespace = "feedbackflow"
	defaultSubsystem = "server"
)

var defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}

// Manager owns a registry and the collectors registered on it.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	feedbackSubmitted   prometheus.Counter
	feedbackRejected    *prometheus.CounterVec
	eventsRecorded      *prometheus.CounterVec
	rateLimited         prometheus.Counter
	rollupsWritten      prometheus.Counter
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a Manager. Without WithRegistry every Manager gets its own registry.
func NewManager(options ...Option) *Manager {
	manager := &Manager{
		namespace:        defaultNamespace,
		subsystem:        defaultSubsystem,
		histogramBuckets: defaultLatencyBuckets,
	}
	for _, option := range options {
		option(manager)
	}
	if manager.registry == nil {
		manager.registry = prometheus.NewRegistry()
	}
	manager.initializeMetrics()
	return manager
}

func (manager *Manager) initializeMetrics() {
	auto := promauto.With(manager.registry)

	manager.feedbackSubmitted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: manager.namespace,
		Subsystem: manager.subsystem,
		Name:      "feedback_submitted_total",
		Help:      "Total number of feedback entries stored",
	})

	manager.feedbackRejected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: manager.namespace,
			Subsystem: manager.subsystem,
			Name:      "feedback_rejected_total",
			Help:      "Total number of feedback submissions rejected by reason",
		},
		[]string{"reason"},
	)

	manager.eventsRecorded = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: manager.namespace,
			Subsystem: manager.subsystem,
			Name:      "events_recorded_total",
			Help:      "Total number of widget events stored by type",
		},
		[]string{"event_type"},
	)

	manager.rateLimited = auto.NewCounter(prometheus.CounterOpts{
		Namespace: manager.namespace,
		Subsystem: manager.subsystem,
		Name:      "rate_limited_total",
		Help:      "Total number of public requests refused by the rate limiter",
	})

	manager.rollupsWritten = auto.NewCounter(prometheus.CounterOpts{
		Namespace: manager.namespace,
		Subsystem: manager.subsystem,
		Name:      "event_rollups_written_total",
		Help:      "Total number of daily event rollup rows written",
	})

	manager.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: manager.namespace,
			Subsystem: manager.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route, method and status",
		},
		[]string{"route", "method", "status_code"},
	)

	manager.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: manager.namespace,
			Subsystem: manager.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   manager.histogramBuckets,
		},
		[]string{"route", "method", "status_code"},
	)
}

// RecordFeedbackSubmitted counts a stored feedback entry.
func (manager *Manager) RecordFeedbackSubmitted() {
	manager.feedbackSubmitted.Inc()
}

// RecordFeedbackRejected counts a refused submission.
func (manager *Manager) RecordFeedbackRejected(reason string) {
	manager.feedbackRejected.WithLabelValues(reason).Inc()
}

// RecordEvent counts a stored widget event.
func (manager *Manager) RecordEvent(eventType string) {
	manager.eventsRecorded.WithLabelValues(eventType).Inc()
}

// RecordRateLimited counts a throttled request.
func (manager *Manager) RecordRateLimited() {
	manager.rateLimited.Inc()
}

// RecordRollupsWritten adds rollup rows written by one job run.
func (manager *Manager) RecordRollupsWritten(count int) {
	if count > 0 {
		manager.rollupsWritten.Add(float64(count))
	}
}

// RecordHTTPRequest counts a finished request and observes its latency.
func (manager *Manager) RecordHTTPRequest(route string, method string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	manager.httpRequests.WithLabelValues(route, method, status).Inc()
	manager.httpRequestDuration.WithLabelValues(route, method, status).Observe(float64(duration) / float64(time.Millisecond))
}

// Registry returns the registry holding this manager's collectors.
func (manager *Manager) Registry() *prometheus.Registry {
	return manager.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (manager *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(manager.registry, promhttp.HandlerOpts{})
}
