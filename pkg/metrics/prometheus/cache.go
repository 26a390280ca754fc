package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittoserve/pkg/bufcache"
	"github.com/marmos91/dittoserve/pkg/metrics"
)

// cacheMetrics is the Prometheus implementation of bufcache.Metrics.
type cacheMetrics struct {
	lookups       *prometheus.CounterVec
	reservations  *prometheus.CounterVec
	evictions     *prometheus.CounterVec
	evictedBytes  *prometheus.CounterVec
	entries       prometheus.Gauge
	usedBytes     prometheus.Gauge
	capacityBytes prometheus.Gauge
}

// NewCacheMetrics creates a Prometheus-backed bufcache.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// capacity is the cache budget in bytes and is exported as a constant gauge.
func NewCacheMetrics(capacity uint64) bufcache.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	m := &cacheMetrics{
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by result",
			},
			[]string{"result"}, // "hit", "miss"
		),
		reservations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "cache_reservations_total",
				Help:      "Cache reservation attempts by result",
			},
			[]string{"result"}, // "ok", "rejected"
		),
		evictions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "cache_evictions_total",
				Help:      "Entries removed from the cache by reason",
			},
			[]string{"reason"},
		),
		evictedBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metrics.Namespace,
				Name:      "cache_evicted_bytes_total",
				Help:      "File bytes removed from the cache by reason",
			},
			[]string{"reason"},
		),
		entries: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Name:      "cache_entries",
				Help:      "Current number of cache entries, loading or enabled",
			},
		),
		usedBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Name:      "cache_used_bytes",
				Help:      "Bytes held in allocated cache slices",
			},
		),
		capacityBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: metrics.Namespace,
				Name:      "cache_capacity_bytes",
				Help:      "Configured cache budget in bytes",
			},
		),
	}
	m.capacityBytes.Set(float64(capacity))
	return m
}

func (m *cacheMetrics) ObserveLookup(hit bool) {
	m.lookups.WithLabelValues(hitLabel(hit)).Inc()
}

func (m *cacheMetrics) RecordReservation(ok bool) {
	result := "rejected"
	if ok {
		result = "ok"
	}
	m.reservations.WithLabelValues(result).Inc()
}

func (m *cacheMetrics) RecordEviction(reason string, bytes uint64) {
	m.evictions.WithLabelValues(reason).Inc()
	m.evictedBytes.WithLabelValues(reason).Add(float64(bytes))
}

func (m *cacheMetrics) RecordUsage(entries int, usedBytes uint64) {
	m.entries.Set(float64(entries))
	m.usedBytes.Set(float64(usedBytes))
}

func hitLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
