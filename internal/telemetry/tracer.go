package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. HTTP keys follow the OpenTelemetry semantic conventions.
const (
	AttrClientIP   = "client.address"
	AttrMethod     = "http.request.method"
	AttrRoute      = "url.path"
	AttrStatusCode = "http.response.status_code"
	AttrRequestID  = "http.request.id"

	AttrFilePath = "file.path"
	AttrFileSize = "file.size"

	AttrCacheHit    = "cache.hit"
	AttrCacheSource = "cache.source" // cache, load, direct
	AttrCacheSlices = "cache.slices"
)

// Span names.
const (
	SpanServe        = "fileserve.serve"
	SpanLoad         = "fileserve.load"
	SpanDirect       = "fileserve.direct"
	SpanCachePurge   = "cache.purge"
	SpanCacheInvalid = "cache.invalidate"
)

// ClientIP returns an attribute for the client address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// Method returns an attribute for the HTTP method
func Method(m string) attribute.KeyValue {
	return attribute.String(AttrMethod, m)
}

// Route returns an attribute for the request path
func Route(p string) attribute.KeyValue {
	return attribute.String(AttrRoute, p)
}

// StatusCode returns an attribute for the response status
func StatusCode(code int) attribute.KeyValue {
	return attribute.Int(AttrStatusCode, code)
}

// RequestID returns an attribute for the server-assigned request ID
func RequestID(id string) attribute.KeyValue {
	return attribute.String(AttrRequestID, id)
}

// FilePath returns an attribute for the served file
func FilePath(p string) attribute.KeyValue {
	return attribute.String(AttrFilePath, p)
}

// FileSize returns an attribute for a file size in bytes
func FileSize(n int64) attribute.KeyValue {
	return attribute.Int64(AttrFileSize, n)
}

// CacheHit returns an attribute for cache hit/miss
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheSource returns an attribute naming where the body came from
func CacheSource(source string) attribute.KeyValue {
	return attribute.String(AttrCacheSource, source)
}

// CacheSlices returns an attribute for the number of slices in an entry
func CacheSlices(n int) attribute.KeyValue {
	return attribute.Int(AttrCacheSlices, n)
}

// StartFileSpan starts an internal span for a file serving operation.
func StartFileSpan(ctx context.Context, name, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{FilePath(path)}, attrs...)
	return StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(all...),
	)
}

// StartRequestSpan starts the server span for one HTTP request.
func StartRequestSpan(ctx context.Context, method, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{Method(method), Route(path)}, attrs...)
	return StartSpan(ctx, method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(all...),
	)
}
