package channel

import (
	"context"

	"github.com/marmos91/dittoserve/pkg/bufpool"
)

// Stream is the Sink for one response on a Conn. All state is guarded by
// the connection mutex.
type Stream struct {
	c    *Conn
	head func() []byte

	headSent bool
	shut     bool
	closed   bool
	resumed  bool
	posted   bool
	listener func()
	body     int64
	closeFns []func()
}

var _ Sink = (*Stream)(nil)

// HeadSent reports whether the response head has been queued.
func (s *Stream) HeadSent() bool {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.headSent
}

// Shut reports whether ShutdownWrites has been called.
func (s *Stream) Shut() bool {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.shut
}

// BodyBytes returns the number of body bytes accepted so far.
func (s *Stream) BodyBytes() int64 {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.body
}

func (s *Stream) checkLocked() error {
	if s.closed {
		return ErrClosed
	}
	return s.c.err
}

func (s *Stream) emitHeadLocked() {
	if s.headSent {
		return
	}
	s.headSent = true
	if s.head == nil {
		return
	}
	if h := s.head(); len(h) > 0 {
		chunk := bufpool.Get(len(h))
		copy(chunk, h)
		s.c.enqueueLocked(chunk)
	}
}

// WriteVectored implements Sink.
func (s *Stream) WriteVectored(bufs [][]byte) (int64, error) {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := s.checkLocked(); err != nil {
		return 0, err
	}
	if s.shut {
		return 0, ErrShutdown
	}
	s.emitHeadLocked()

	space := c.limit - c.buffered
	if space <= 0 {
		return 0, nil
	}
	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	n := min(space, total)
	if n == 0 {
		return 0, nil
	}

	chunk := bufpool.Get(n)
	off := 0
	for _, b := range bufs {
		if off == n {
			break
		}
		off += copy(chunk[off:], b)
	}
	c.enqueueLocked(chunk)
	s.body += int64(n)
	return int64(n), nil
}

// ShutdownWrites implements Sink.
func (s *Stream) ShutdownWrites() error {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := s.checkLocked(); err != nil {
		return err
	}
	if s.shut {
		return nil
	}
	s.emitHeadLocked()
	s.shut = true
	c.kickWriter()
	s.maybePostLocked()
	return nil
}

// Flush implements Sink.
func (s *Stream) Flush() (bool, error) {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := s.checkLocked(); err != nil {
		return false, err
	}
	c.kickWriter()
	return c.buffered == 0, nil
}

// SetWriteListener implements Sink.
func (s *Stream) SetWriteListener(fn func()) {
	s.c.mu.Lock()
	s.listener = fn
	s.c.mu.Unlock()
}

// ResumeWrites implements Sink.
func (s *Stream) ResumeWrites() {
	s.c.mu.Lock()
	s.resumed = true
	s.maybePostLocked()
	s.c.mu.Unlock()
}

// SuspendWrites implements Sink.
func (s *Stream) SuspendWrites() {
	s.c.mu.Lock()
	s.resumed = false
	s.c.mu.Unlock()
}

// AwaitWritable implements Sink.
func (s *Stream) AwaitWritable(ctx context.Context) error {
	c := s.c
	return c.await(ctx, func() bool { return c.buffered < c.limit }, s.checkLocked)
}

// AwaitFlushed implements Sink.
func (s *Stream) AwaitFlushed(ctx context.Context) error {
	c := s.c
	c.kickWriter()
	return c.await(ctx, func() bool { return c.buffered == 0 }, s.checkLocked)
}

// OnClose implements Sink.
func (s *Stream) OnClose(fn func()) {
	s.c.mu.Lock()
	if s.closed {
		s.c.mu.Unlock()
		fn()
		return
	}
	s.closeFns = append(s.closeFns, fn)
	s.c.mu.Unlock()
}

// Close implements Sink. Close listeners run on the calling goroutine.
func (s *Stream) Close() error {
	c := s.c
	c.mu.Lock()
	if s.closed {
		c.mu.Unlock()
		return nil
	}
	s.closed = true
	clean := s.shut
	fns := s.closeFns
	s.closeFns = nil
	s.listener = nil
	if c.stream == s {
		c.stream = nil
	}
	c.mu.Unlock()

	if !clean {
		c.Abort()
	}
	for _, fn := range fns {
		fn()
	}
	return nil
}

// readyLocked reports whether the write listener is due: writable while the
// body is open, fully flushed once it is shut down, or broken.
func (s *Stream) readyLocked() bool {
	c := s.c
	if c.err != nil {
		return true
	}
	if s.shut {
		return c.buffered == 0
	}
	return c.buffered < c.limit
}

func (s *Stream) maybePostLocked() {
	if s.closed || !s.resumed || s.listener == nil || s.posted || !s.readyLocked() {
		return
	}
	s.posted = true
	if err := s.c.loop.Execute(s.fire); err != nil {
		s.posted = false
	}
}

func (s *Stream) fire() {
	c := s.c
	c.mu.Lock()
	s.posted = false
	if s.closed || !s.resumed || s.listener == nil {
		c.mu.Unlock()
		return
	}
	fn := s.listener
	c.mu.Unlock()

	fn()

	c.mu.Lock()
	s.maybePostLocked()
	c.mu.Unlock()
}
