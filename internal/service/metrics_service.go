package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	renderDuration   *prometheus.HistogramVec
	renderBytes      *prometheus.CounterVec
	previewArtifacts *prometheus.CounterVec
	definitionCache  *prometheus.CounterVec
	auditFailures    prometheus.Counter

	startedAt    time.Time
	requestCount uint64
	renderCount  uint64
}

// MetricsSnapshot is a small summary exposed on the health endpoint.
type MetricsSnapshot struct {
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Requests      uint64 `json:"requests"`
	Renders       uint64 `json:"renders"`
	Goroutines    int    `json:"goroutines"`
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	renderDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "report_render_duration_seconds",
		Help:    "Duration of report renders",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"report", "format", "outcome"})

	renderBytes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_render_bytes_total",
		Help: "Bytes of generated report output",
	}, []string{"format"})

	previewArtifacts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_preview_artifacts_total",
		Help: "Preview artifacts by lifecycle event",
	}, []string{"event"})

	definitionCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "report_definition_cache_total",
		Help: "Definition history cache lookups",
	}, []string{"result"})

	auditFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "report_audit_failures_total",
		Help: "Generated report audit rows that could not be queued",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, renderDuration, renderBytes, previewArtifacts, definitionCache, auditFailures, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		renderDuration:   renderDuration,
		renderBytes:      renderBytes,
		previewArtifacts: previewArtifacts,
		definitionCache:  definitionCache,
		auditFailures:    auditFailures,
		startedAt:        time.Now(),
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// ObserveRender records one render attempt.
func (m *MetricsService) ObserveRender(report, format string, size int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else {
		m.renderBytes.WithLabelValues(format).Add(float64(size))
	}
	m.renderDuration.WithLabelValues(report, format, outcome).Observe(duration.Seconds())
	atomic.AddUint64(&m.renderCount, 1)
}

// RecordPreviewArtifact counts artifact lifecycle events (created, fetched, expired).
func (m *MetricsService) RecordPreviewArtifact(event string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.previewArtifacts.WithLabelValues(event).Add(float64(n))
}

// RecordCacheOperation records definition cache hits and misses.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.definitionCache.WithLabelValues("hit").Inc()
		return
	}
	m.definitionCache.WithLabelValues("miss").Inc()
}

// RecordAuditFailure counts audit rows dropped before reaching the queue.
func (m *MetricsService) RecordAuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{Goroutines: runtime.NumGoroutine()}
	}
	return MetricsSnapshot{
		UptimeSeconds: int64(time.Since(m.startedAt).Seconds()),
		Requests:      atomic.LoadUint64(&m.requestCount),
		Renders:       atomic.LoadUint64(&m.renderCount),
		Goroutines:    runtime.NumGoroutine(),
	}
}
