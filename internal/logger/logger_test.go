package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// captureOutput redirects logger output to a buffer and restores the previous
// writer, level and format on cleanup.
func captureOutput(t *testing.T, lvl, fmtName string) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)

	mu.RLock()
	origOutput, origColor, origFormat := output, useColor, format
	mu.RUnlock()
	origLevel := level.Level()

	InitWithWriter(buf, lvl, fmtName, false)

	t.Cleanup(func() {
		mu.Lock()
		output, useColor, format = origOutput, origColor, origFormat
		mu.Unlock()
		level.Set(origLevel)
		rebuild()
	})
	return buf
}

// ============================================================================
// Level Filtering Tests
// ============================================================================

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		buf := captureOutput(t, "DEBUG", "text")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		for _, s := range []string{"DEBUG", "INFO", "WARN", "ERROR", "debug message", "error message"} {
			assert.Contains(t, out, s)
		}
	})

	t.Run("InfoLevelFiltersDebug", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")

		Debug("debug message")
		Info("info message")

		assert.NotContains(t, buf.String(), "debug message")
		assert.Contains(t, buf.String(), "info message")
	})

	t.Run("ErrorLevelOnlyShowsErrors", func(t *testing.T) {
		buf := captureOutput(t, "ERROR", "text")

		Info("info message")
		Warn("warn message")
		Error("error message")

		assert.NotContains(t, buf.String(), "info message")
		assert.NotContains(t, buf.String(), "warn message")
		assert.Contains(t, buf.String(), "error message")
	})

	t.Run("InvalidLevelIgnored", func(t *testing.T) {
		buf := captureOutput(t, "WARN", "text")

		SetLevel("LOUD")
		Info("info message")

		assert.Empty(t, buf.String())
		assert.True(t, Enabled(slog.LevelWarn))
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{" INFO ", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"Error", slog.LevelError, true},
		{"trace", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ============================================================================
// Format Tests
// ============================================================================

func TestTextFormat(t *testing.T) {
	t.Run("KeyValuePairs", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")

		Info("served", KeyStatus, 200, KeyPath, "/index.html")

		out := buf.String()
		assert.Contains(t, out, "INFO served")
		assert.Contains(t, out, "status=200")
		assert.Contains(t, out, "path=/index.html")
		assert.True(t, strings.HasSuffix(out, "\n"))
	})

	t.Run("QuotesStringsWithSpaces", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")

		Info("msg", "file", "/srv/my file.txt", "empty", "")

		assert.Contains(t, buf.String(), `file="/srv/my file.txt"`)
		assert.Contains(t, buf.String(), `empty=""`)
	})

	t.Run("NilErrorAttrDropped", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")

		Info("msg", Err(nil))

		assert.NotContains(t, buf.String(), KeyError)
	})

	t.Run("GroupsFlattenToDottedKeys", func(t *testing.T) {
		buf := captureOutput(t, "INFO", "text")

		With("conn", 7).WithGroup("cache").Info("stats", "entries", 3, slog.Group("bytes", "used", 512))

		out := buf.String()
		assert.Contains(t, out, "conn=7")
		assert.Contains(t, out, "cache.entries=3")
		assert.Contains(t, out, "cache.bytes.used=512")
	})

	t.Run("ColorWrapsLevel", func(t *testing.T) {
		buf := new(bytes.Buffer)
		h := NewColorTextHandler(buf, nil, true)
		slog.New(h).Warn("careful")

		assert.Contains(t, buf.String(), colorYellow+"WARN"+colorReset)
	})
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t, "INFO", "json")

	Info("served", KeyStatus, 404, KeySource, "load")

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "served", m["msg"])
	assert.Equal(t, "INFO", m["level"])
	assert.Equal(t, float64(404), m[KeyStatus])
	assert.Equal(t, "load", m[KeySource])
}

func TestSetFormatIgnoresUnknown(t *testing.T) {
	buf := captureOutput(t, "INFO", "json")

	SetFormat("xml")
	Info("still json")

	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

// ============================================================================
// Context Tests
// ============================================================================

func TestContextLogging(t *testing.T) {
	t.Run("InjectsRequestFields", func(t *testing.T) {
		buf := captureOutput(t, "DEBUG", "json")

		lc := NewLogContext("10.0.0.1").WithRequest("req-1", "GET", "/a.txt").WithTrace("t1", "s1")
		ctx := WithContext(context.Background(), lc)
		InfoCtx(ctx, "served", KeyStatus, 200)

		var m map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
		assert.Equal(t, "req-1", m[KeyRequestID])
		assert.Equal(t, "GET", m[KeyMethod])
		assert.Equal(t, "/a.txt", m[KeyPath])
		assert.Equal(t, "10.0.0.1", m[KeyClientIP])
		assert.Equal(t, "t1", m[KeyTraceID])
		assert.Equal(t, "s1", m[KeySpanID])
	})

	t.Run("MissingContextLogsPlain", func(t *testing.T) {
		buf := captureOutput(t, "DEBUG", "text")

		WarnCtx(context.Background(), "plain")
		DebugCtx(WithContext(context.Background(), nil), "nil ctx")

		assert.Contains(t, buf.String(), "plain")
		assert.Contains(t, buf.String(), "nil ctx")
		assert.NotContains(t, buf.String(), KeyRequestID)
	})

	t.Run("CloneIsIndependent", func(t *testing.T) {
		lc := NewLogContext("1.2.3.4")
		other := lc.WithRequest("r", "HEAD", "/")

		assert.Empty(t, lc.RequestID)
		assert.Equal(t, "HEAD", other.Method)
		assert.Nil(t, (*LogContext)(nil).Clone())
		assert.Zero(t, (*LogContext)(nil).DurationMs())
		assert.GreaterOrEqual(t, lc.DurationMs(), 0.0)
	})
}

// ============================================================================
// Output Tests
// ============================================================================

func TestInitFileOutput(t *testing.T) {
	captureOutput(t, "INFO", "text")

	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, Init(Config{Level: "INFO", Format: "text", Output: path}))
	Info("to file", KeySize, 1)
	require.NoError(t, Init(Config{Output: "stderr"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to file")
}

func TestInitBadFile(t *testing.T) {
	err := Init(Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestConcurrentLogging(t *testing.T) {
	buf := new(syncBuffer)
	captureOutput(t, "INFO", "text")
	InitWithWriter(buf, "INFO", "text", false)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Info("line", "worker", j)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 16*50, strings.Count(buf.String(), "\n"))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
