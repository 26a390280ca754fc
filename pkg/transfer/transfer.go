// Package transfer writes a list of in-memory buffers to a channel.Sink
// without ever blocking.
//
// A Transfer writes until the sink stops taking bytes, then parks itself as
// the sink's write listener and returns. When every buffer is drained it
// shuts down writes, flushes, and invokes its completion callback once the
// flush is done. Every exit either completes the transfer or leaves exactly
// one listener registered to resume it.
package transfer

import (
	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/channel"
)

// Transfer is the resumable state of one buffered response body.
type Transfer struct {
	sink channel.Sink
	bufs [][]byte
	done func()

	// inline allows one attempt on the current stack to park a continuation
	// when the sink reports backpressure.
	inline bool
}

// New creates a transfer of bufs to sink. bufs are consumed in place;
// callers should pass views they own. done runs when the transfer ends,
// successfully or not.
func New(sink channel.Sink, bufs [][]byte, done func(), inline bool) *Transfer {
	return &Transfer{sink: sink, bufs: bufs, done: done, inline: inline}
}

// Drain starts a transfer of bufs on the current stack.
func Drain(sink channel.Sink, bufs [][]byte, done func()) {
	New(sink, bufs, done, true).Poll()
}

// Remaining returns the number of bytes not yet written.
func (t *Transfer) Remaining() int64 {
	var n int64
	for _, b := range t.bufs {
		n += int64(len(b))
	}
	return n
}

func (t *Transfer) pending() bool {
	return len(t.bufs) > 0 && len(t.bufs[len(t.bufs)-1]) > 0
}

// Poll makes as much progress as the sink allows.
func (t *Transfer) Poll() {
	for t.pending() {
		n, err := t.sink.WriteVectored(t.bufs)
		if err != nil {
			logger.Debug("transfer write failed", logger.Err(err))
			_ = t.sink.Close()
			t.done()
			return
		}
		if n == 0 {
			if t.inline {
				next := New(t.sink, t.bufs, t.done, false)
				t.sink.SetWriteListener(next.Poll)
				t.sink.ResumeWrites()
			}
			// A continuation stays registered; the sink calls it again on
			// the next writability event.
			return
		}
		t.advance(n)
	}

	t.sink.SuspendWrites()
	if err := t.sink.ShutdownWrites(); err != nil {
		logger.Debug("transfer shutdown failed", logger.Err(err))
		t.done()
		return
	}
	flushed, err := t.sink.Flush()
	if err != nil {
		logger.Debug("transfer flush failed", logger.Err(err))
		t.done()
		return
	}
	if !flushed {
		t.sink.SetWriteListener(t.flushThenComplete)
		t.sink.ResumeWrites()
		return
	}
	t.done()
}

func (t *Transfer) flushThenComplete() {
	flushed, err := t.sink.Flush()
	if err != nil {
		logger.Debug("transfer flush failed", logger.Err(err))
		t.sink.SuspendWrites()
		_ = t.sink.Close()
		t.done()
		return
	}
	if !flushed {
		return
	}
	t.sink.SuspendWrites()
	t.done()
}

// advance consumes n bytes from the front of the buffer list, dropping
// buffers that are fully written.
func (t *Transfer) advance(n int64) {
	if len(t.bufs) == 0 {
		return
	}
	i := 0
	for n > 0 && i < len(t.bufs) {
		l := int64(len(t.bufs[i]))
		if l > n {
			t.bufs[i] = t.bufs[i][n:]
			n = 0
			break
		}
		n -= l
		t.bufs[i] = t.bufs[i][:0]
		i++
	}
	// Keep the last buffer so pending can test it.
	if i >= len(t.bufs) {
		i = len(t.bufs) - 1
	}
	t.bufs = t.bufs[i:]
}
