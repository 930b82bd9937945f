// Package metrics exposes Prometheus metrics for uploads, the ingestion
// pipeline, HTTP traffic and realtime clients.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "callreport"

// Metrics holds all application metrics on its own registry
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion metrics
	uploadsTotal     *prometheus.CounterVec
	recordsTotal     prometheus.Counter
	rowsSkippedTotal prometheus.Counter
	pipelineDuration *prometheus.HistogramVec

	// Storage metrics
	rowsPersisted prometheus.Counter
	storageErrors *prometheus.CounterVec

	// WebSocket metrics
	wsConnectionsTotal prometheus.Counter
	wsActive           prometheus.Gauge
	wsMessagesTotal    prometheus.Counter
	wsErrorsTotal      prometheus.Counter
	notificationsTotal *prometheus.CounterVec

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Files run through the ingestion pipeline by format and outcome",
		}, []string{"format", "outcome"}),
		recordsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Call records produced by normalization",
		}),
		rowsSkippedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Data rows dropped by the row skip rules",
		}),
		pipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Time taken to decode, normalize and aggregate one file",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"format"}),

		rowsPersisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_persisted_total",
			Help:      "Queue metric rows written to the store",
		}),
		storageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Failed store operations by operation",
		}, []string{"operation"}),

		wsConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_connections_total",
			Help:      "WebSocket connections accepted",
		}),
		wsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_active_connections",
			Help:      "Currently connected WebSocket clients",
		}),
		wsMessagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_messages_total",
			Help:      "Messages delivered to WebSocket clients",
		}),
		wsErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "websocket_errors_total",
			Help:      "WebSocket read and write errors",
		}),
		notificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Realtime notifications published by type",
		}, []string{"type"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status",
		}, []string{"route", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordIngestion records one pipeline run
func (m *Metrics) RecordIngestion(format, outcome string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	m.uploadsTotal.WithLabelValues(format, outcome).Inc()
	m.pipelineDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// RecordRows records normalization row counts
func (m *Metrics) RecordRows(records, skipped int) {
	m.recordsTotal.Add(float64(records))
	m.rowsSkippedTotal.Add(float64(skipped))
}

// RecordRowsPersisted records rows written to the store
func (m *Metrics) RecordRowsPersisted(n int) {
	m.rowsPersisted.Add(float64(n))
}

// RecordStorageError increments the storage error counter
func (m *Metrics) RecordStorageError(operation string) {
	m.storageErrors.WithLabelValues(operation).Inc()
}

// RecordWebSocketConnect increments connection counters
func (m *Metrics) RecordWebSocketConnect() {
	m.wsConnectionsTotal.Inc()
	m.wsActive.Inc()
}

// RecordWebSocketDisconnect decrements the active connection gauge
func (m *Metrics) RecordWebSocketDisconnect() {
	m.wsActive.Dec()
}

// RecordWebSocketMessage increments message counter
func (m *Metrics) RecordWebSocketMessage() {
	m.wsMessagesTotal.Inc()
}

// RecordWebSocketError increments WebSocket error counter
func (m *Metrics) RecordWebSocketError() {
	m.wsErrorsTotal.Inc()
}

// RecordNotification counts a published notification
func (m *Metrics) RecordNotification(notificationType string) {
	m.notificationsTotal.WithLabelValues(notificationType).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(route string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
