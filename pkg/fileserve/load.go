package fileserve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/internal/telemetry"
	"github.com/marmos91/dittoserve/pkg/bufcache"
	"github.com/marmos91/dittoserve/pkg/channel"
	"github.com/marmos91/dittoserve/pkg/transfer"
)

// loadAndServe runs on the worker executor. It opens path, answers HEAD from
// file metadata, and for GET either fills a fresh cache entry and hands it to
// the connection loop, or streams the file directly.
func (s *Server) loadAndServe(ex Exchange, sink channel.Sink, path, method string) {
	start := time.Now()
	ctx, span := telemetry.StartFileSpan(ex.Context(), telemetry.SpanLoad, path)
	defer span.End()

	f, err := s.fs.Open(path)
	if err != nil {
		s.loadFailed(ctx, ex, path, err, start)
		return
	}

	info, err := f.Stat()
	if err == nil && info.IsDir() {
		err = fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	}
	if err != nil {
		_ = f.Close()
		s.loadFailed(ctx, ex, path, err, start)
		return
	}

	size := info.Size()
	telemetry.SetAttributes(ctx, telemetry.FileSize(size))
	ex.SetHeader(HeaderContentLength, strconv.FormatInt(size, 10))
	ex.SetHeader(HeaderContentType, contentType(path, func() []byte { return sniffFile(f, size) }))

	if method == MethodHead {
		_ = f.Close()
		s.observeLoad(OutcomeHead, 0, start)
		ex.Complete()
		return
	}
	if method != MethodGet {
		_ = f.Close()
		ex.SetStatus(http.StatusInternalServerError)
		ex.Complete()
		return
	}

	var entry *bufcache.Entry
	if s.cache != nil && size < s.maxFileSize {
		entry = s.cache.Reserve(path, uint64(size))
	}
	if entry == nil {
		telemetry.SetAttributes(ctx, telemetry.CacheSource(OutcomeDirect))
		n := s.transferDirect(ctx, ex, sink, f, size)
		s.observeLoad(OutcomeDirect, n, start)
		return
	}

	telemetry.SetAttributes(ctx,
		telemetry.CacheSource(OutcomeCached),
		telemetry.CacheSlices(len(entry.Buffers())))
	adviseSequential(f, size)

	if err := fillEntry(f, entry, size); err != nil {
		_ = f.Close()
		// The entry stays reserved and un-enabled; the cache reclaims it.
		entry.Release()
		logger.WarnCtx(ctx, "file read failed", logger.File(path), logger.Err(err))
		telemetry.RecordError(ctx, err)
		s.observeLoad(OutcomeError, 0, start)
		ex.SetStatus(http.StatusInternalServerError)
		ex.Complete()
		return
	}
	_ = f.Close()

	views := entry.Views()
	entry.Enable()
	s.observeLoad(OutcomeCached, size, start)

	sink.OnClose(entry.Release)
	if err := ex.IO().Execute(func() {
		transfer.Drain(sink, views, ex.Complete)
	}); err != nil {
		logger.DebugCtx(ctx, "connection loop gone", logger.File(path), logger.Err(err))
		_ = sink.Close()
	}
}

func (s *Server) loadFailed(ctx context.Context, ex Exchange, path string, err error, start time.Time) {
	if errors.Is(err, fs.ErrNotExist) {
		logger.DebugCtx(ctx, "file not found", logger.File(path))
		s.observeLoad(OutcomeNotFound, 0, start)
		ex.SetStatus(http.StatusNotFound)
		ex.Complete()
		return
	}
	logger.WarnCtx(ctx, "file open failed", logger.File(path), logger.Err(err))
	telemetry.RecordError(ctx, err)
	s.observeLoad(OutcomeError, 0, start)
	ex.SetStatus(http.StatusInternalServerError)
	ex.Complete()
}

// fillEntry reads exactly size bytes from r into the entry's slices and
// trims the last slice to the bytes it holds.
func fillEntry(r io.Reader, entry *bufcache.Entry, size int64) error {
	bufs := entry.Buffers()
	remaining := size
	for i, b := range bufs {
		want := min(int64(len(b)), remaining)
		n, err := io.ReadFull(r, b[:want])
		remaining -= int64(n)
		if err != nil {
			return fmt.Errorf("read %d of %d bytes: %w", size-remaining, size, err)
		}
		if remaining == 0 {
			bufs[i] = b[:want]
			return nil
		}
	}
	return fmt.Errorf("entry too small for %d bytes: %w", size, io.ErrShortBuffer)
}

func (s *Server) observeLoad(outcome string, n int64, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveLoad(outcome, n, time.Since(start))
	}
}
