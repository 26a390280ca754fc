package httpd

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/internal/telemetry"
	"github.com/marmos91/dittoserve/pkg/channel"
	"github.com/marmos91/dittoserve/pkg/executor"
)

var badRequestHead = []byte("HTTP/1.1 400 Bad Request\r\n" +
	"Content-Length: 0\r\n" +
	"Connection: close\r\n" +
	"Server: " + serverName + "\r\n\r\n")

// connection serves the requests of one client connection in order. Reads
// happen on the connection goroutine; writes go through out, whose write
// listeners run on loop.
type connection struct {
	srv      *Server
	nc       net.Conn
	br       *bufio.Reader
	loop     *executor.Loop
	out      *channel.Conn
	clientIP string
}

func newConnection(s *Server, nc net.Conn) *connection {
	loop := executor.NewLoop()
	clientIP := nc.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(clientIP); err == nil {
		clientIP = host
	}
	return &connection{
		srv:  s,
		nc:   nc,
		br:   bufio.NewReader(nc),
		loop: loop,
		out: channel.NewConn(nc, loop, channel.Options{
			WriteBufferSize: s.config.WriteBufferSize,
			WriteTimeout:    s.config.WriteTimeout,
		}),
		clientIP: clientIP,
	}
}

// serve handles requests until the client goes away, a response cannot be
// followed by another one, or the server shuts down.
func (c *connection) serve(ctx context.Context) {
	defer c.handleClose()

	idle := c.srv.config.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}

	for {
		if err := c.nc.SetReadDeadline(time.Now().Add(idle)); err != nil {
			logger.Debug("Failed to set deadline", logger.KeyAddress, c.clientIP, logger.Err(err))
		}
		if c.srv.shuttingDown() || ctx.Err() != nil {
			return
		}

		req, err := http.ReadRequest(c.br)
		if err != nil {
			c.readFailed(err)
			return
		}
		if req.ProtoMajor != 1 {
			c.badRequest(errors.New("unsupported protocol " + req.Proto))
			return
		}

		if !c.handle(ctx, req) {
			return
		}
	}
}

// handle runs one exchange to completion and reports whether the
// connection can be reused.
func (c *connection) handle(ctx context.Context, req *http.Request) bool {
	start := time.Now()
	id := uuid.NewString()

	lc := logger.NewLogContext(c.clientIP).WithRequest(id, req.Method, req.URL.Path)
	ctx, span := telemetry.StartRequestSpan(ctx, req.Method, req.URL.Path,
		telemetry.RequestID(id), telemetry.ClientIP(c.clientIP))
	defer span.End()
	ctx = logger.WithContext(ctx, lc.WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx)))

	if rt := c.srv.config.ReadTimeout; rt > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(rt))
	}

	ex := newExchange(c, ctx, req)
	if target, ok := resolvePath(c.srv.config.Root, req.URL.Path); ok {
		c.srv.files.Serve(ex, target)
	} else {
		ex.keepAlive.Store(false)
		ex.DiscardRequestBody()
		ex.SetStatus(http.StatusBadRequest)
		ex.Complete()
	}

	if err := c.loop.RunUntil(ctx, ex.done); err != nil {
		logger.DebugCtx(ctx, "exchange aborted", logger.Err(err))
		c.out.Abort()
		ex.Complete()
	}

	status := ex.statusCode()
	written := ex.stream.BodyBytes()
	elapsed := time.Since(start)
	telemetry.SetAttributes(ctx, telemetry.StatusCode(status))
	if c.srv.metrics != nil {
		c.srv.metrics.RecordRequest(req.Method, status, written, elapsed)
	}
	logger.DebugCtx(ctx, "request served",
		logger.Status(status),
		logger.KeyBytesWritten, written,
		logger.KeyDurationMs, float64(elapsed.Microseconds())/1000)

	return ex.reusable()
}

func (c *connection) readFailed(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		logger.Debug("Connection closed by client", logger.KeyAddress, c.clientIP)
	case errors.Is(err, os.ErrDeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("Connection timed out", logger.KeyAddress, c.clientIP)
	case errors.Is(err, io.ErrUnexpectedEOF):
		logger.Debug("Connection closed mid-request", logger.KeyAddress, c.clientIP)
	default:
		c.badRequest(err)
	}
}

func (c *connection) badRequest(err error) {
	logger.Debug("Malformed request", logger.KeyAddress, c.clientIP, logger.Err(err))
	if c.srv.metrics != nil {
		c.srv.metrics.RecordRequest("", http.StatusBadRequest, 0, 0)
	}
	s := c.out.NewStream(func() []byte { return badRequestHead })
	_ = s.ShutdownWrites()
	_ = s.Close()
}

// handleClose recovers from panics, flushes pending output and closes the
// connection.
func (c *connection) handleClose() {
	if r := recover(); r != nil {
		logger.Error("Panic in connection handler",
			logger.KeyAddress, c.clientIP,
			logger.KeyError, r,
			"stack", string(debug.Stack()))
		c.out.Abort()
	}

	timeout := c.srv.config.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultCloseTimeout
	}
	ctx, cancel := context.WithTimeout(c.srv.requestCtx, timeout)
	defer cancel()
	if err := c.out.Close(ctx); err != nil {
		logger.Debug("Connection close did not flush", logger.KeyAddress, c.clientIP, logger.Err(err))
	}
	c.loop.Stop()
}
