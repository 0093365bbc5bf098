// Package monitoring exposes Prometheus metrics for the engine and its
// HTTP surface.
package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Extension registry metrics
	ExtensionsInstalled prometheus.Gauge
	ExtensionsEnabled   prometheus.Gauge

	// Injection metrics
	InjectionsServed   prometheus.Counter
	InjectionCacheHits prometheus.Counter
	InjectionCacheMiss prometheus.Counter

	// WebRequest metrics
	RequestEvents   *prometheus.CounterVec
	ActionsResolved *prometheus.CounterVec
	ActiveRequests  prometheus.Gauge

	// Messaging metrics
	MessagesRouted   *prometheus.CounterVec
	ResponseTimeouts prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for the JSON status endpoint
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON status endpoint.
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	TotalDuration float64 `json:"-"`
	RequestCount  int64   `json:"-"`
}

// NewMetrics creates a metrics collector on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a metrics collector on a caller-owned registry.
// Tests use this to avoid duplicate-registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extengine_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extengine_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		ExtensionsInstalled: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "extengine_extensions_installed",
				Help: "Number of installed extensions",
			},
		),
		ExtensionsEnabled: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "extengine_extensions_enabled",
				Help: "Number of enabled extensions",
			},
		),

		InjectionsServed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "extengine_injections_served_total",
				Help: "Total number of injection set lookups served",
			},
		),
		InjectionCacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "extengine_injection_cache_hits_total",
				Help: "Injection lookups answered from the URL cache",
			},
		),
		InjectionCacheMiss: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "extengine_injection_cache_misses_total",
				Help: "Injection lookups that evaluated rules",
			},
		),

		RequestEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extengine_webrequest_events_total",
				Help: "Total number of webRequest lifecycle events fired",
			},
			[]string{"event"},
		),
		ActionsResolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extengine_webrequest_actions_total",
				Help: "Resolved webRequest actions by kind",
			},
			[]string{"action"},
		),
		ActiveRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "extengine_webrequest_active",
				Help: "Number of in-flight tracked requests",
			},
		),

		MessagesRouted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extengine_messages_routed_total",
				Help: "Total number of messages routed by target kind",
			},
			[]string{"target"},
		),
		ResponseTimeouts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "extengine_response_timeouts_total",
				Help: "SendAndWait calls that expired without a response",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "extengine_ws_connections",
				Help: "Number of active WebSocket event subscribers",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "extengine_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	go m.updateUptime()
	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordEvent records a webRequest lifecycle event.
func (m *Metrics) RecordEvent(event string) {
	m.RequestEvents.WithLabelValues(event).Inc()
}

// RecordAction records the resolved action for a request stage.
func (m *Metrics) RecordAction(kind string) {
	m.ActionsResolved.WithLabelValues(kind).Inc()
}

// RecordMessage records one routed message.
func (m *Metrics) RecordMessage(target string) {
	m.MessagesRouted.WithLabelValues(target).Inc()
}

// SetExtensionCounts updates the registry gauges.
func (m *Metrics) SetExtensionCounts(installed, enabled int) {
	m.ExtensionsInstalled.Set(float64(installed))
	m.ExtensionsEnabled.Set(float64(enabled))
}

// CurrentSnapshot returns aggregate values for the JSON status endpoint.
func (m *Metrics) CurrentSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// AverageRequestDuration returns the mean request duration in seconds.
func (m *Metrics) AverageRequestDuration() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot.RequestCount == 0 {
		return 0
	}
	return m.snapshot.TotalDuration / float64(m.snapshot.RequestCount)
}
