package logger

import "log/slog"

// Standard field keys for structured logging.
// Use these keys consistently so log aggregation can query on them.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// HTTP exchange
	// ========================================================================
	KeyRequestID = "request_id"
	KeyMethod    = "method"
	KeyPath      = "path"
	KeyStatus    = "status"
	KeyClientIP  = "client_ip"
	KeyAddress   = "address"

	// ========================================================================
	// File serving
	// ========================================================================
	KeyFile         = "file"          // Absolute path of the served file
	KeySize         = "size"          // File size in bytes
	KeySource       = "source"        // cache, load, direct
	KeyBytesWritten = "bytes_written" // Body bytes handed to the connection
	KeyDurationMs   = "duration_ms"
	KeyError        = "error"

	// ========================================================================
	// Buffer cache
	// ========================================================================
	KeyKey        = "key"
	KeySlices     = "slices"
	KeyUsed       = "used_bytes"
	KeyCapacity   = "capacity_bytes"
	KeyEvicted    = "evicted"
	KeyEntries    = "entries"
	KeyReason     = "reason"
	KeyActive     = "active"
	KeyMaxWorkers = "max_workers"
)

// RequestID returns a slog.Attr for the request ID.
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Method returns a slog.Attr for the HTTP method.
func Method(m string) slog.Attr {
	return slog.String(KeyMethod, m)
}

// Status returns a slog.Attr for an HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(KeyStatus, code)
}

// File returns a slog.Attr for a served file path.
func File(path string) slog.Attr {
	return slog.String(KeyFile, path)
}

// Size returns a slog.Attr for a size in bytes.
func Size(n int64) slog.Attr {
	return slog.Int64(KeySize, n)
}

// Source returns a slog.Attr naming where a response body came from.
func Source(s string) slog.Attr {
	return slog.String(KeySource, s)
}

// Err returns a slog.Attr for an error. A nil error yields an empty attr,
// which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
