package httpd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoserve/pkg/channel"
	"github.com/marmos91/dittoserve/pkg/executor"
	"github.com/marmos91/dittoserve/pkg/fileserve"
)

// maxDiscard is the largest request body drained to keep a connection
// reusable. Larger bodies close the connection instead.
const maxDiscard = 256 << 10

const serverName = "dittoserve"

// exchange implements fileserve.Exchange for one HTTP request.
type exchange struct {
	conn   *connection
	req    *http.Request
	ctx    context.Context
	stream *channel.Stream

	keepAlive atomic.Bool

	mu     sync.Mutex
	status int
	header http.Header

	completed atomic.Bool
	clean     atomic.Bool
	done      chan struct{}
}

var _ fileserve.Exchange = (*exchange)(nil)

func newExchange(c *connection, ctx context.Context, req *http.Request) *exchange {
	e := &exchange{
		conn:   c,
		req:    req,
		ctx:    ctx,
		status: http.StatusOK,
		header: make(http.Header),
		done:   make(chan struct{}),
	}
	e.keepAlive.Store(c.srv.config.KeepAlive && !req.Close && !c.srv.shuttingDown())
	e.stream = c.out.NewStream(e.renderHead)
	return e
}

func (e *exchange) Method() string { return e.req.Method }

func (e *exchange) DiscardRequestBody() {
	body := e.req.Body
	if body == nil || body == http.NoBody {
		return
	}
	n, err := io.Copy(io.Discard, io.LimitReader(body, maxDiscard+1))
	if err != nil || n > maxDiscard {
		e.keepAlive.Store(false)
		return
	}
	_ = body.Close()
}

func (e *exchange) SetHeader(name, value string) {
	e.mu.Lock()
	e.header.Set(name, value)
	e.mu.Unlock()
}

func (e *exchange) SetStatus(code int) {
	e.mu.Lock()
	e.status = code
	e.mu.Unlock()
}

func (e *exchange) ResponseSink() (channel.Sink, bool) {
	if e.completed.Load() {
		return nil, false
	}
	return e.stream, true
}

// Complete ends the exchange exactly once. A response that never wrote its
// head gets an explicit empty body, and one that never shut down its body
// aborts the connection when the stream closes.
func (e *exchange) Complete() {
	if !e.completed.CompareAndSwap(false, true) {
		return
	}
	if !e.stream.HeadSent() && !strings.EqualFold(e.req.Method, fileserve.MethodHead) {
		e.SetHeader(fileserve.HeaderContentLength, "0")
	}
	if !e.stream.Shut() && e.stream.BodyBytes() == 0 {
		_ = e.stream.ShutdownWrites()
	}
	e.clean.Store(e.stream.Shut())
	_ = e.stream.Close()
	close(e.done)
}

func (e *exchange) Worker() executor.Executor { return e.conn.srv.workers }
func (e *exchange) IO() executor.Executor     { return e.conn.loop }
func (e *exchange) Context() context.Context  { return e.ctx }

func (e *exchange) statusCode() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// reusable reports whether the connection may carry another request.
func (e *exchange) reusable() bool {
	return e.keepAlive.Load() && e.clean.Load() && e.conn.out.Err() == nil
}

// renderHead serializes the status line and headers. It is called once by
// the stream, just before the first byte goes out.
func (e *exchange) renderHead() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.keepAlive.Load() {
		e.header.Set("Connection", "close")
	}
	e.header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	e.header.Set("Server", serverName)

	var buf bytes.Buffer
	buf.Grow(256)
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", e.status, http.StatusText(e.status))
	_ = e.header.Write(&buf)
	buf.WriteString("\r\n")
	return buf.Bytes()
}
