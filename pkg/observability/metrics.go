package observability

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Search metrics
	SearchRequestsTotal *prometheus.CounterVec
	SearchDuration      *prometheus.HistogramVec
	SearchResults       *prometheus.HistogramVec

	// Index metrics
	IndexOperationsTotal  *prometheus.CounterVec
	RebuildDocumentsTotal *prometheus.CounterVec
	NotificationsTotal    *prometheus.CounterVec
	IndexRows             prometheus.Gauge

	// Database metrics
	DBConnectionsOpen      prometheus.Gauge
	DBConnectionsInUse     prometheus.Gauge
	DBConnectionsIdle      prometheus.Gauge
	DBConnectionsWaitCount prometheus.Gauge
}

var _ Recorder = (*Metrics)(nil)

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesearch_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitesearch_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		SearchRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesearch_search_requests_total",
				Help: "Total number of search and count queries",
			},
			[]string{"operation", "document_type", "status"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitesearch_search_duration_seconds",
				Help:    "Search query duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		SearchResults: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sitesearch_search_results",
				Help:    "Number of results returned per query",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
			[]string{"operation"},
		),

		IndexOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesearch_index_operations_total",
				Help: "Total number of index row operations",
			},
			[]string{"action", "status"},
		),
		RebuildDocumentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesearch_rebuild_documents_total",
				Help: "Documents processed by index rebuilds",
			},
			[]string{"outcome"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitesearch_notifications_total",
				Help: "Change notifications received",
			},
			[]string{"action", "status"},
		),
		IndexRows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitesearch_index_rows",
				Help: "Number of rows in the search table after the last rebuild",
			},
		),

		DBConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitesearch_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitesearch_db_connections_in_use",
				Help: "Number of database connections in use",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitesearch_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitesearch_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SearchRequestsTotal,
		m.SearchDuration,
		m.SearchResults,
		m.IndexOperationsTotal,
		m.RebuildDocumentsTotal,
		m.NotificationsTotal,
		m.IndexRows,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
	)

	return m
}

// RecordSearch implements Recorder
func (m *Metrics) RecordSearch(_ context.Context, operation, documentType string, duration time.Duration, results int, err error) {
	if documentType == "" {
		documentType = "all"
	}
	m.SearchRequestsTotal.WithLabelValues(operation, documentType, statusLabel(err)).Inc()
	m.SearchDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err == nil {
		m.SearchResults.WithLabelValues(operation).Observe(float64(results))
	}
}

// RecordIndexOperation implements Recorder
func (m *Metrics) RecordIndexOperation(_ context.Context, action string, err error) {
	m.IndexOperationsTotal.WithLabelValues(action, statusLabel(err)).Inc()
}

// RecordRebuildDocument implements Recorder
func (m *Metrics) RecordRebuildDocument(_ context.Context, outcome string) {
	m.RebuildDocumentsTotal.WithLabelValues(outcome).Inc()
}

// RecordNotification implements Recorder
func (m *Metrics) RecordNotification(_ context.Context, action string, err error) {
	m.NotificationsTotal.WithLabelValues(action, statusLabel(err)).Inc()
}

// RecordIndexRows implements Recorder
func (m *Metrics) RecordIndexRows(_ context.Context, rows int) {
	m.IndexRows.Set(float64(rows))
}

// UpdateDBStats copies connection pool stats into the gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// pathLabel maps a request to a bounded label, e.g. its route template.
func HTTPMetricsMiddleware(metrics *Metrics, pathLabel func(*http.Request) string) func(http.Handler) http.Handler {
	if pathLabel == nil {
		pathLabel = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := pathLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus text format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
