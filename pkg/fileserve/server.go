// Package fileserve serves static file bodies over a channel.Sink.
//
// Small files are read once into the buffer cache and served from memory
// afterwards. Everything else, and every request that finds a load already
// in flight, is loaded on the worker executor and either copied into a new
// cache entry or streamed straight from disk.
package fileserve

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/internal/telemetry"
	"github.com/marmos91/dittoserve/pkg/bufcache"
	"github.com/marmos91/dittoserve/pkg/bufpool"
	"github.com/marmos91/dittoserve/pkg/channel"
	"github.com/marmos91/dittoserve/pkg/transfer"
)

// DefaultMaxFileSize is the largest file admitted to the cache.
const DefaultMaxFileSize = 2048 * 1024

// Config configures a Server.
type Config struct {
	// Fs is the file system files are read from. Nil means the OS.
	Fs afero.Fs

	// Cache holds small file bodies. Nil disables caching.
	Cache *bufcache.Cache

	// MaxFileSize is the admission threshold: only files strictly smaller
	// are cached.
	MaxFileSize int64

	// CopyBufferSize is the read size of direct transfers.
	CopyBufferSize int

	// Metrics is optional.
	Metrics Metrics
}

// Server serves files by absolute path.
type Server struct {
	fs          afero.Fs
	cache       *bufcache.Cache
	maxFileSize int64
	copySize    int
	metrics     Metrics
}

// New creates a Server.
func New(cfg Config) *Server {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if cfg.CopyBufferSize <= 0 {
		cfg.CopyBufferSize = bufpool.DefaultMediumSize
	}
	return &Server{
		fs:          cfg.Fs,
		cache:       cfg.Cache,
		maxFileSize: cfg.MaxFileSize,
		copySize:    cfg.CopyBufferSize,
		metrics:     cfg.Metrics,
	}
}

// Cache returns the server's buffer cache, or nil.
func (s *Server) Cache() *bufcache.Cache { return s.cache }

// Serve answers ex with the file at path. path is the cache key and must be
// absolute. Serve never blocks on disk; loads run on ex.Worker().
func (s *Server) Serve(ex Exchange, path string) {
	ctx, span := telemetry.StartFileSpan(ex.Context(), telemetry.SpanServe, path)
	defer span.End()

	ex.DiscardRequestBody()

	method := strings.ToUpper(ex.Method())
	if method != MethodGet && method != MethodHead {
		logger.DebugCtx(ctx, "method not served", logger.KeyMethod, ex.Method())
		s.recordServe(method, SourceRejected)
		ex.SetStatus(http.StatusInternalServerError)
		ex.Complete()
		return
	}

	sink, ok := ex.ResponseSink()
	if !ok {
		ex.Complete()
		return
	}
	sink.OnClose(ex.Complete)

	if s.cache == nil {
		s.dispatchLoad(ex, sink, path, method)
		return
	}

	entry := s.cache.Lookup(path)
	switch {
	case entry == nil:
		telemetry.SetAttributes(ctx, telemetry.CacheHit(false))
		s.dispatchLoad(ex, sink, path, method)

	case entry.Enabled():
		telemetry.SetAttributes(ctx, telemetry.CacheHit(true), telemetry.CacheSource(SourceCache))
		s.serveCached(ex, sink, entry, path, method)

	default:
		// Another request is still loading this entry. Do not wait on it.
		entry.Release()
		telemetry.SetAttributes(ctx, telemetry.CacheHit(false))
		s.dispatchLoad(ex, sink, path, method)
	}
}

func (s *Server) serveCached(ex Exchange, sink channel.Sink, entry *bufcache.Entry, path, method string) {
	s.recordServe(method, SourceCache)
	ex.SetHeader(HeaderContentLength, strconv.FormatUint(entry.Size(), 10))
	ex.SetHeader(HeaderContentType, contentType(path, func() []byte { return sniffViews(entry.Views()) }))

	if method == MethodHead {
		entry.Release()
		ex.Complete()
		return
	}

	sink.OnClose(entry.Release)
	transfer.Drain(sink, entry.Views(), ex.Complete)
}

func (s *Server) dispatchLoad(ex Exchange, sink channel.Sink, path, method string) {
	s.recordServe(method, SourceLoad)
	err := ex.Worker().Execute(func() {
		s.loadAndServe(ex, sink, path, method)
	})
	if err != nil {
		logger.WarnCtx(ex.Context(), "load task rejected", logger.File(path), logger.Err(err))
		ex.SetStatus(http.StatusInternalServerError)
		ex.Complete()
	}
}

func (s *Server) recordServe(method, source string) {
	if s.metrics != nil {
		s.metrics.RecordServe(method, source)
	}
}
