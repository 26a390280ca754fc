package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittoserve/pkg/httpd"
	"github.com/marmos91/dittoserve/pkg/metrics"
)

// httpMetrics is the Prometheus implementation of httpd.Metrics.
type httpMetrics struct {
	connections       *prometheus.CounterVec
	activeConnections prometheus.Gauge
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	responseBytes     prometheus.Counter
}

// NewHTTPMetrics creates a Prometheus-backed httpd.Metrics.
//
// Returns nil if metrics are not enabled.
func NewHTTPMetrics() httpd.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &httpMetrics{
		connections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "http_connections_total",
				Help:      "Connection lifecycle events",
			},
			[]string{"event"}, // "accepted", "closed", "force_closed"
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Name:      "http_active_connections",
				Help:      "Currently open client connections",
			},
		),
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method and status code",
			},
			[]string{"method", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Name:      "http_request_duration_milliseconds",
				Help:      "Time from request parse to response completion",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{"method"},
		),
		responseBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "http_response_body_bytes_total",
				Help:      "Response body bytes handed to connections",
			},
		),
	}
}

func (m *httpMetrics) RecordConnectionAccepted() {
	m.connections.WithLabelValues("accepted").Inc()
}

func (m *httpMetrics) RecordConnectionClosed() {
	m.connections.WithLabelValues("closed").Inc()
}

func (m *httpMetrics) RecordConnectionForceClosed() {
	m.connections.WithLabelValues("force_closed").Inc()
}

func (m *httpMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *httpMetrics) RecordRequest(method string, status int, bytes int64, duration time.Duration) {
	method = methodLabel(method)
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds() * 1000)
	if bytes > 0 {
		m.responseBytes.Add(float64(bytes))
	}
}

// methodLabel bounds label cardinality to the standard methods.
func methodLabel(method string) string {
	switch method {
	case "GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS", "PATCH", "CONNECT", "TRACE":
		return method
	default:
		return "other"
	}
}
