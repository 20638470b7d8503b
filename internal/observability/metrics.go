// Package observability provides Prometheus metrics for the application.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vidfetch"

// Metrics holds all application metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Video metrics
	VideosProcessed   *prometheus.CounterVec
	VideosDownloaded  *prometheus.CounterVec
	DownloadBytes     prometheus.Counter
	ExtractorDuration *prometheus.HistogramVec

	// Workspace metrics
	WorkspacesAllocated prometheus.Counter
	WorkspacesCurrent   prometheus.Gauge
	CleanupTotal        *prometheus.CounterVec
	SweptTotal          prometheus.Counter

	// Session metrics
	SessionsCurrent prometheus.Gauge
	SessionsExpired prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Proxy metrics
	ProxyRequestsTotal *prometheus.CounterVec
	ProxyFailures      *prometheus.CounterVec
	ProxiesAvailable   prometheus.Gauge

	// Extractor metrics
	ExtractorErrors *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates all application metrics and registers them with reg.
// A nil reg uses the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	gatherer := prometheus.DefaultGatherer

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	factory := promauto.With(reg)

	metrics := &Metrics{
		// Video metrics
		VideosProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "videos",
			Name:      "processed_total",
			Help:      "Total number of metadata extraction requests by outcome",
		}, []string{"status"}),
		VideosDownloaded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "videos",
			Name:      "downloaded_total",
			Help:      "Total number of download requests by outcome",
		}, []string{"status"}),
		DownloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "videos",
			Name:      "download_bytes_total",
			Help:      "Total bytes of downloaded files handed to clients",
		}),
		ExtractorDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "duration_seconds",
			Help:      "Histogram of extractor call duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"operation"}),

		// Workspace metrics
		WorkspacesAllocated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "allocated_total",
			Help:      "Total number of workspace directories allocated",
		}),
		WorkspacesCurrent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "current",
			Help:      "Number of workspace directories found by the last sweep",
		}),
		CleanupTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "cleanup_total",
			Help:      "Total number of post-download cleanups by outcome",
		}, []string{"status"}),
		SweptTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workspace",
			Name:      "swept_total",
			Help:      "Total number of stale workspace directories removed",
		}),

		// Session metrics
		SessionsCurrent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "current",
			Help:      "Current number of download sessions",
		}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "expired_total",
			Help:      "Total number of expired download sessions evicted",
		}),

		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		HTTPResponseSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "Histogram of HTTP response sizes in bytes",
			Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000, 100000000},
		}, []string{"method", "path"}),

		// Proxy metrics
		ProxyRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Total number of extractor calls made through proxies",
		}, []string{"proxy"}),
		ProxyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "failures_total",
			Help:      "Total number of proxy failures",
		}, []string{"proxy"}),
		ProxiesAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "proxy",
			Name:      "available",
			Help:      "Number of currently available proxies",
		}),

		// Extractor metrics
		ExtractorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extractor",
			Name:      "errors_total",
			Help:      "Total number of extractor errors",
		}, []string{"operation", "error_type"}),

		gatherer: gatherer,
	}

	return metrics
}

// Handler returns the Prometheus HTTP handler serving the registry the metrics were created with.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}

	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ExtractorTimer returns a function to record extractor call duration.
func (m *Metrics) ExtractorTimer(operation string) func() {
	start := time.Now()

	return func() {
		if m == nil {
			return
		}

		m.ExtractorDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration, size int) {
	if m == nil {
		return
	}

	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(size))
}

// RecordVideoProcessed records the outcome of a metadata request.
func (m *Metrics) RecordVideoProcessed(status string) {
	if m == nil {
		return
	}

	m.VideosProcessed.WithLabelValues(status).Inc()
}

// RecordVideoDownloaded records the outcome of a download request.
func (m *Metrics) RecordVideoDownloaded(status string) {
	if m == nil {
		return
	}

	m.VideosDownloaded.WithLabelValues(status).Inc()
}

// RecordDownloadBytes adds n bytes to the served bytes counter.
func (m *Metrics) RecordDownloadBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}

	m.DownloadBytes.Add(float64(n))
}

// RecordWorkspaceAllocated increments the allocated workspaces counter.
func (m *Metrics) RecordWorkspaceAllocated() {
	if m == nil {
		return
	}

	m.WorkspacesAllocated.Inc()
}

// RecordCleanup records a post-download cleanup outcome.
func (m *Metrics) RecordCleanup(status string) {
	if m == nil {
		return
	}

	m.CleanupTotal.WithLabelValues(status).Inc()
}

// RecordSweep records a stale sweep result.
func (m *Metrics) RecordSweep(removed, remaining int) {
	if m == nil {
		return
	}

	m.SweptTotal.Add(float64(removed))
	m.WorkspacesCurrent.Set(float64(remaining))
}

// SetSessions sets the number of stored sessions.
func (m *Metrics) SetSessions(count int) {
	if m == nil {
		return
	}

	m.SessionsCurrent.Set(float64(count))
}

// RecordSessionsExpired adds n evicted sessions.
func (m *Metrics) RecordSessionsExpired(n int) {
	if m == nil {
		return
	}

	m.SessionsExpired.Add(float64(n))
}

// RecordExtractorError records an extractor error.
func (m *Metrics) RecordExtractorError(operation, errorType string) {
	if m == nil {
		return
	}

	m.ExtractorErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordProxyRequest records a proxy request.
func (m *Metrics) RecordProxyRequest(proxy string) {
	if m == nil {
		return
	}

	m.ProxyRequestsTotal.WithLabelValues(proxy).Inc()
}

// RecordProxyFailure records a proxy failure.
func (m *Metrics) RecordProxyFailure(proxy string) {
	if m == nil {
		return
	}

	m.ProxyFailures.WithLabelValues(proxy).Inc()
}

// SetProxiesAvailable sets the number of available proxies.
func (m *Metrics) SetProxiesAvailable(count int) {
	if m == nil {
		return
	}

	m.ProxiesAvailable.Set(float64(count))
}
