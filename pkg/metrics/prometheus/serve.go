package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittoserve/pkg/fileserve"
	"github.com/marmos91/dittoserve/pkg/metrics"
)

// serveMetrics is the Prometheus implementation of fileserve.Metrics.
type serveMetrics struct {
	serves       *prometheus.CounterVec
	loadDuration *prometheus.HistogramVec
	loadBytes    *prometheus.HistogramVec
}

// NewServeMetrics creates a Prometheus-backed fileserve.Metrics.
//
// Returns nil if metrics are not enabled.
func NewServeMetrics() fileserve.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &serveMetrics{
		serves: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "serve_requests_total",
				Help:      "File requests by method and dispatch source",
			},
			[]string{"method", "source"}, // source: "cache", "load", "rejected"
		),
		loadDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Name:      "load_duration_milliseconds",
				Help:      "Duration of load tasks in milliseconds",
				Buckets: []float64{
					0.1,  // 100us - metadata only
					0.5,  // 500us
					1,    // 1ms
					5,    // 5ms - small cached files
					10,   // 10ms
					50,   // 50ms
					100,  // 100ms
					500,  // 500ms - large direct transfers
					1000, // 1s
					5000, // 5s
				},
			},
			[]string{"outcome"},
		),
		loadBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metrics.Namespace,
				Name:      "load_bytes",
				Help:      "Distribution of bytes read by load tasks",
				Buckets: []float64{
					512,      // one slice
					4096,     // 4KB
					32768,    // 32KB
					131072,   // 128KB
					524288,   // 512KB
					2097152,  // 2MB - default admission limit
					10485760, // 10MB
					104857600,
				},
			},
			[]string{"outcome"},
		),
	}
}

func (m *serveMetrics) RecordServe(method, source string) {
	m.serves.WithLabelValues(methodLabel(method), source).Inc()
}

func (m *serveMetrics) ObserveLoad(outcome string, bytes int64, duration time.Duration) {
	m.loadDuration.WithLabelValues(outcome).Observe(duration.Seconds() * 1000)
	if bytes > 0 {
		m.loadBytes.WithLabelValues(outcome).Observe(float64(bytes))
	}
}
