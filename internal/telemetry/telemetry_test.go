package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "dittoserve", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())
	assert.NotNil(t, Tracer())
}

func TestNoOpHelpers(t *testing.T) {
	ctx, span := StartSpan(context.Background(), SpanServe)
	defer span.End()

	require.NotPanics(t, func() {
		AddEvent(ctx, "event", CacheHit(true))
		RecordError(ctx, nil)
		RecordError(ctx, errors.New("boom"))
		SetStatus(ctx, codes.Error, "failed")
		SetAttributes(ctx, ClientIP("192.168.1.1"))
	})
	assert.Empty(t, TraceID(context.Background()))
	assert.Empty(t, SpanID(context.Background()))
	assert.NotNil(t, SpanFromContext(ctx))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOn")
	assert.Contains(t, sampler(0).Description(), "AlwaysOff")
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}

func TestAttributeHelpers(t *testing.T) {
	tests := []struct {
		name string
		key  string
		got  any
		want any
	}{
		{"ClientIP", AttrClientIP, ClientIP("10.0.0.1").Value.AsString(), "10.0.0.1"},
		{"Method", AttrMethod, Method("GET").Value.AsString(), "GET"},
		{"Route", AttrRoute, Route("/a/b.txt").Value.AsString(), "/a/b.txt"},
		{"StatusCode", AttrStatusCode, StatusCode(404).Value.AsInt64(), int64(404)},
		{"RequestID", AttrRequestID, RequestID("r1").Value.AsString(), "r1"},
		{"FilePath", AttrFilePath, FilePath("/srv/x").Value.AsString(), "/srv/x"},
		{"FileSize", AttrFileSize, FileSize(100).Value.AsInt64(), int64(100)},
		{"CacheHit", AttrCacheHit, CacheHit(true).Value.AsBool(), true},
		{"CacheSource", AttrCacheSource, CacheSource("load").Value.AsString(), "load"},
		{"CacheSlices", AttrCacheSlices, CacheSlices(3).Value.AsInt64(), int64(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}

	assert.Equal(t, AttrStatusCode, string(StatusCode(200).Key))
}

func TestStartSpans(t *testing.T) {
	ctx := context.Background()

	fctx, fspan := StartFileSpan(ctx, SpanLoad, "/srv/a.txt", FileSize(10))
	require.NotNil(t, fctx)
	fspan.End()

	rctx, rspan := StartRequestSpan(ctx, "GET", "/a.txt")
	require.NotNil(t, rctx)
	rspan.End()
}

func TestProfiling(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		shutdown, err := InitProfiling(ProfilingConfig{})
		require.NoError(t, err)
		assert.NoError(t, shutdown())
		assert.False(t, IsProfilingEnabled())
	})

	t.Run("InvalidProfileType", func(t *testing.T) {
		_, err := InitProfiling(ProfilingConfig{Enabled: true, ProfileTypes: []string{"heap"}})
		require.Error(t, err)
		assert.False(t, IsProfilingEnabled())
	})

	t.Run("ProfileTypeNames", func(t *testing.T) {
		names := ProfileTypeNames()
		assert.Len(t, names, 10)
		assert.Contains(t, names, "cpu")
		assert.IsIncreasing(t, names)
	})
}
