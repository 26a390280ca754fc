package prometheus

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoserve/pkg/bufcache"
	"github.com/marmos91/dittoserve/pkg/metrics"
)

func enableMetrics(t *testing.T) {
	t.Helper()
	metrics.Reset()
	metrics.InitRegistry()
	t.Cleanup(metrics.Reset)
}

func TestDisabledReturnsNil(t *testing.T) {
	metrics.Reset()
	assert.Nil(t, NewCacheMetrics(1024))
	assert.Nil(t, NewServeMetrics())
	assert.Nil(t, NewHTTPMetrics())
}

func TestCacheMetrics(t *testing.T) {
	enableMetrics(t)
	m := NewCacheMetrics(4096).(*cacheMetrics)

	m.ObserveLookup(true)
	m.ObserveLookup(false)
	m.ObserveLookup(false)
	m.RecordReservation(true)
	m.RecordReservation(false)
	m.RecordEviction(bufcache.ReasonLRU, 100)
	m.RecordEviction(bufcache.ReasonLRU, 50)
	m.RecordUsage(3, 1536)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.lookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reservations.WithLabelValues("rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.evictions.WithLabelValues(bufcache.ReasonLRU)))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.evictedBytes.WithLabelValues(bufcache.ReasonLRU)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.entries))
	assert.Equal(t, 1536.0, testutil.ToFloat64(m.usedBytes))
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.capacityBytes))
}

func TestCacheMetricsWiredIntoCache(t *testing.T) {
	enableMetrics(t)
	m := NewCacheMetrics(64).(*cacheMetrics)
	c := bufcache.New(bufcache.Config{SliceSize: 16, MaxSize: 64, Metrics: m})

	assert.Nil(t, c.Lookup("a"))
	e := c.Reserve("a", 20)
	require.NotNil(t, e)
	e.Enable()
	e.Release()
	hit := c.Lookup("a")
	require.NotNil(t, hit)
	hit.Release()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reservations.WithLabelValues("ok")))
	assert.Equal(t, 32.0, testutil.ToFloat64(m.usedBytes))
}

func TestServeMetrics(t *testing.T) {
	enableMetrics(t)
	m := NewServeMetrics().(*serveMetrics)

	m.RecordServe("GET", "cache")
	m.RecordServe("BREW", "rejected")
	m.ObserveLoad("cached", 1024, 2*time.Millisecond)
	m.ObserveLoad("not_found", 0, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.serves.WithLabelValues("GET", "cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.serves.WithLabelValues("other", "rejected")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.loadDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.loadBytes))
}

func TestHTTPMetrics(t *testing.T) {
	enableMetrics(t)
	m := NewHTTPMetrics().(*httpMetrics)

	m.RecordConnectionAccepted()
	m.RecordConnectionAccepted()
	m.RecordConnectionClosed()
	m.RecordConnectionForceClosed()
	m.SetActiveConnections(1)
	m.RecordRequest("GET", 200, 512, time.Millisecond)
	m.RecordRequest("", 400, 0, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.connections.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections.WithLabelValues("force_closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("other", "400")))
	assert.Equal(t, 512.0, testutil.ToFloat64(m.responseBytes))
}

func TestMetricsEndpoint(t *testing.T) {
	enableMetrics(t)
	m := NewServeMetrics()
	m.RecordServe("GET", "cache")

	srv, err := metrics.NewServer("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	go func() { _ = srv.Start() }()
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `dittoserve_serve_requests_total{method="GET",source="cache"} 1`), text)
	assert.Contains(t, text, "go_goroutines")
}
