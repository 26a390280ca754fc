// Package httpd is a minimal HTTP/1.x front end for the file server. It owns
// the TCP listener, parses requests, maps them onto files under a root
// directory and drives each exchange on a per-connection loop.
package httpd

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/executor"
	"github.com/marmos91/dittoserve/pkg/fileserve"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultPort            = 8080
	DefaultShutdownTimeout = 30 * time.Second
	DefaultIdleTimeout     = 2 * time.Minute
	DefaultCloseTimeout    = 5 * time.Second
)

// Config configures a Server.
type Config struct {
	// BindAddress is the IP address to bind to.
	// Empty string or "0.0.0.0" binds to all interfaces.
	BindAddress string

	// Port is the TCP port to listen on. 0 picks a free port.
	Port int

	// Root is the directory files are served from.
	Root string

	// MaxConnections limits the number of concurrent client connections.
	// 0 means unlimited.
	MaxConnections int

	// IdleTimeout bounds the wait for the next request on a connection.
	IdleTimeout time.Duration

	// ReadTimeout bounds reading a request body.
	ReadTimeout time.Duration

	// WriteTimeout bounds each socket write.
	WriteTimeout time.Duration

	// WriteBufferSize is the per-connection output buffer threshold.
	WriteBufferSize int

	// KeepAlive allows more than one request per connection.
	KeepAlive bool

	// ShutdownTimeout is the maximum duration to wait for active connections
	// to complete during graceful shutdown.
	ShutdownTimeout time.Duration

	// MetricsLogInterval is the interval at which to log server metrics.
	// 0 disables periodic metrics logging.
	MetricsLogInterval time.Duration
}

// Server accepts HTTP connections and serves files through a
// fileserve.Server.
//
// All exported methods are safe for concurrent use. Stop may be called more
// than once.
type Server struct {
	config  Config
	files   *fileserve.Server
	workers executor.Executor
	metrics Metrics

	listener      net.Listener
	listenerMu    sync.RWMutex
	listenerReady chan struct{}
	// listenDone is closed once Serve has tried to bind, whatever the outcome.
	listenDone chan struct{}

	// activeConns tracks connection goroutines for graceful shutdown.
	activeConns   sync.WaitGroup
	connCount     atomic.Int32
	connSemaphore chan struct{}

	// conns maps remote address to net.Conn for forced closure.
	conns sync.Map

	shutdown     chan struct{}
	shutdownOnce sync.Once

	// requestCtx is cancelled when shutdown gives up waiting, aborting
	// in-flight responses.
	requestCtx     context.Context
	cancelRequests context.CancelFunc
}

// New creates a stopped Server. Call Serve to start it.
func New(cfg Config, files *fileserve.Server, workers executor.Executor, metrics Metrics) (*Server, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid root %q: %w", cfg.Root, err)
	}
	cfg.Root = root
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	var sem chan struct{}
	if cfg.MaxConnections > 0 {
		sem = make(chan struct{}, cfg.MaxConnections)
		logger.Debug("HTTP connection limit", "max_connections", cfg.MaxConnections)
	}

	requestCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:         cfg,
		files:          files,
		workers:        workers,
		metrics:        metrics,
		listenerReady:  make(chan struct{}),
		listenDone:     make(chan struct{}),
		connSemaphore:  sem,
		shutdown:       make(chan struct{}),
		requestCtx:     requestCtx,
		cancelRequests: cancel,
	}, nil
}

// Serve runs the accept loop until ctx is cancelled or Stop is called.
//
// Returns nil on graceful shutdown, or an error if the listener fails or
// connections had to be force-closed.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.BindAddress, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		close(s.listenDone)
		return fmt.Errorf("failed to create HTTP listener on %s: %w", addr, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.listenerReady)
	close(s.listenDone)

	logger.Info("HTTP server listening", logger.KeyAddress, listener.Addr().String(), "root", s.config.Root)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("HTTP shutdown signal received", logger.Err(ctx.Err()))
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		nc, err := listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting HTTP connection", logger.Err(err))
				continue
			}
		}

		if tcp, ok := nc.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("Failed to set TCP_NODELAY", logger.Err(err))
			}
		}

		s.activeConns.Add(1)
		active := s.connCount.Add(1)
		remote := nc.RemoteAddr().String()
		s.conns.Store(remote, nc)

		if s.metrics != nil {
			s.metrics.RecordConnectionAccepted()
			s.metrics.SetActiveConnections(active)
		}
		logger.Debug("HTTP connection accepted", logger.KeyAddress, remote, logger.KeyActive, active)

		go func(remote string, nc net.Conn) {
			defer func() {
				s.conns.Delete(remote)
				left := s.connCount.Add(-1)
				if s.metrics != nil {
					s.metrics.RecordConnectionClosed()
					s.metrics.SetActiveConnections(left)
				}
				logger.Debug("HTTP connection closed", logger.KeyAddress, remote, logger.KeyActive, left)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}
				s.activeConns.Done()
			}()

			newConnection(s, nc).serve(s.requestCtx)
		}(remote, nc)
	}
}

// initiateShutdown stops the accept loop and wakes idle connections so they
// exit after their current response. Safe to call more than once.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("HTTP shutdown initiated")
		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing HTTP listener", logger.Err(err))
			}
		}
		s.listenerMu.Unlock()

		s.interruptBlockingReads()
	})
}

// interruptBlockingReads sets a short read deadline on every connection so
// connections blocked waiting for a request notice the shutdown.
func (s *Server) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)
	s.conns.Range(func(key, value any) bool {
		if nc, ok := value.(net.Conn); ok {
			if err := nc.SetReadDeadline(deadline); err != nil {
				logger.Debug("Error setting shutdown deadline on connection", logger.KeyAddress, key, logger.Err(err))
			}
		}
		return true
	})
}

func (s *Server) shuttingDown() bool {
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

// gracefulShutdown waits for active connections up to ShutdownTimeout, then
// aborts in-flight responses and force-closes what is left.
func (s *Server) gracefulShutdown() error {
	logger.Info("HTTP graceful shutdown: waiting for active connections",
		logger.KeyActive, s.connCount.Load(), "timeout", s.config.ShutdownTimeout)

	select {
	case <-s.waitConns():
		logger.Info("HTTP graceful shutdown complete: all connections closed")
		s.cancelRequests()
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("HTTP shutdown timeout exceeded - forcing closure",
			logger.KeyActive, remaining, "timeout", s.config.ShutdownTimeout)
		s.cancelRequests()
		s.forceCloseConnections()
		return fmt.Errorf("HTTP shutdown timeout: %d connections force-closed", remaining)
	}
}

func (s *Server) waitConns() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()
	return done
}

func (s *Server) forceCloseConnections() {
	closed := 0
	s.conns.Range(func(key, value any) bool {
		nc := value.(net.Conn)
		if err := nc.Close(); err != nil {
			logger.Debug("Error force-closing connection", logger.KeyAddress, key, logger.Err(err))
			return true
		}
		closed++
		if s.metrics != nil {
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})
	if closed > 0 {
		logger.Info("Force-closed HTTP connections", "count", closed)
	}
}

// Stop initiates graceful shutdown and waits for active connections until
// ctx ends. On ctx expiry in-flight responses are aborted.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	select {
	case <-s.waitConns():
		return nil
	case <-ctx.Done():
		logger.Warn("HTTP shutdown context cancelled", logger.KeyActive, s.connCount.Load(), logger.Err(ctx.Err()))
		s.cancelRequests()
		s.forceCloseConnections()
		return ctx.Err()
	}
}

func (s *Server) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			logger.Info("HTTP metrics", "active_connections", s.connCount.Load())
		}
	}
}

// ActiveConnections returns the current number of open connections.
func (s *Server) ActiveConnections() int32 {
	return s.connCount.Load()
}

// Addr returns the listener address. It blocks until Serve has tried to
// bind and returns "" if that failed.
func (s *Server) Addr() string {
	<-s.listenDone

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Ready is closed once the listener accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.listenerReady
}

// Root returns the absolute directory files are served from.
func (s *Server) Root() string {
	return s.config.Root
}

// Resolve maps a request path onto the file it would serve. The result is
// also the file's cache key.
func (s *Server) Resolve(requestPath string) (string, bool) {
	return resolvePath(s.config.Root, requestPath)
}
