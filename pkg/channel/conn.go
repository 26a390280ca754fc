package channel

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/bufpool"
	"github.com/marmos91/dittoserve/pkg/executor"
)

// DefaultWriteBufferSize bounds the bytes buffered ahead of the socket.
const DefaultWriteBufferSize = 64 << 10

// Options configures a Conn.
type Options struct {
	// WriteBufferSize is the writability threshold in bytes.
	WriteBufferSize int

	// WriteTimeout bounds each socket write. Zero disables the deadline.
	WriteTimeout time.Duration
}

// Conn owns the outbound half of a network connection. Writes are copied
// into a bounded buffer and pushed to the socket by a dedicated writer
// goroutine using vectored writes. Write listeners of the active stream are
// dispatched on loop.
type Conn struct {
	nc           net.Conn
	loop         executor.Executor
	limit        int
	writeTimeout time.Duration

	mu       sync.Mutex
	out      [][]byte
	buffered int // bytes queued or being written
	err      error
	changed  chan struct{}
	stream   *Stream

	kick      chan struct{}
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	written   atomic.Int64
}

// NewConn wraps nc and starts its writer goroutine.
func NewConn(nc net.Conn, loop executor.Executor, opts Options) *Conn {
	if opts.WriteBufferSize <= 0 {
		opts.WriteBufferSize = DefaultWriteBufferSize
	}
	c := &Conn{
		nc:           nc,
		loop:         loop,
		limit:        opts.WriteBufferSize,
		writeTimeout: opts.WriteTimeout,
		changed:      make(chan struct{}),
		kick:         make(chan struct{}, 1),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// NewStream starts a response on the connection. head renders the response
// head; it is called once, right before the first body byte or at write
// shutdown. A nil head emits nothing.
func (c *Conn) NewStream(head func() []byte) *Stream {
	s := &Stream{c: c, head: head}
	c.mu.Lock()
	c.stream = s
	c.mu.Unlock()
	return s
}

// Err returns the error that broke the connection, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Written returns the number of bytes written to the socket.
func (c *Conn) Written() int64 {
	return c.written.Load()
}

// Abort closes the connection immediately, dropping buffered output.
func (c *Conn) Abort() {
	c.fail(ErrClosed)
}

// Close waits for buffered output to be written, bounded by ctx, then
// closes the connection.
func (c *Conn) Close(ctx context.Context) error {
	err := c.await(ctx, func() bool { return c.buffered == 0 }, nil)
	c.fail(ErrClosed)
	<-c.done
	if err == ErrClosed {
		return nil
	}
	return err
}

func (c *Conn) writeLoop() {
	defer close(c.done)
	for {
		select {
		case <-c.kick:
		case <-c.quit:
			return
		}
		if err := c.drain(); err != nil {
			logger.Debug("connection write failed", logger.KeyAddress, c.nc.RemoteAddr().String(), logger.Err(err))
			c.fail(err)
			return
		}
	}
}

func (c *Conn) drain() error {
	for {
		c.mu.Lock()
		if len(c.out) == 0 || c.err != nil {
			c.mu.Unlock()
			return nil
		}
		batch := c.out
		c.out = nil
		c.mu.Unlock()

		total := 0
		for _, b := range batch {
			total += len(b)
		}
		if c.writeTimeout > 0 {
			_ = c.nc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		bufs := make(net.Buffers, len(batch))
		copy(bufs, batch)
		_, err := bufs.WriteTo(c.nc)
		for _, b := range batch {
			bufpool.Put(b)
		}
		if err != nil {
			return err
		}
		c.written.Add(int64(total))

		c.mu.Lock()
		c.buffered -= total
		c.notifyLocked()
		c.mu.Unlock()
	}
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	for _, b := range c.out {
		bufpool.Put(b)
	}
	c.out = nil
	c.notifyLocked()
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.quit)
		_ = c.nc.Close()
	})
}

func (c *Conn) kickWriter() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// notifyLocked wakes blocked waiters and posts the active stream's write
// listener if it is due. Caller must hold c.mu.
func (c *Conn) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
	if c.stream != nil {
		c.stream.maybePostLocked()
	}
}

// await blocks until cond holds, the connection fails, or ctx ends. check
// is an optional extra failure test. cond and check run under c.mu.
func (c *Conn) await(ctx context.Context, cond func() bool, check func() error) error {
	for {
		c.mu.Lock()
		if check != nil {
			if err := check(); err != nil {
				c.mu.Unlock()
				return err
			}
		}
		if c.err != nil {
			err := c.err
			c.mu.Unlock()
			return err
		}
		if cond() {
			c.mu.Unlock()
			return nil
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Conn) enqueueLocked(chunk []byte) {
	c.out = append(c.out, chunk)
	c.buffered += len(chunk)
	c.kickWriter()
}
