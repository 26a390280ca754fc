// Package channel provides the non-blocking response output used by the
// file server: a Sink interface with vectored writes, explicit write
// shutdown and flush, and writability notifications, plus a connection
// backed implementation.
package channel

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by operations on a closed stream or connection.
	ErrClosed = errors.New("channel: closed")

	// ErrShutdown is returned by writes after ShutdownWrites.
	ErrShutdown = errors.New("channel: writes shut down")
)

// Sink is the outbound side of one response.
//
// WriteVectored never blocks: a return of 0 with a nil error means the sink
// cannot take more bytes right now. Callers that want to continue later
// register a write listener and call ResumeWrites; the listener then runs on
// the connection's loop whenever the sink is writable (or, after
// ShutdownWrites, once everything is flushed) for as long as writes stay
// resumed.
type Sink interface {
	// WriteVectored writes from bufs in order and returns the number of bytes
	// taken. It does not modify bufs.
	WriteVectored(bufs [][]byte) (int64, error)

	// ShutdownWrites marks the end of the body. No writes are allowed after.
	ShutdownWrites() error

	// Flush pushes buffered bytes toward the peer and reports whether
	// everything has been written.
	Flush() (bool, error)

	SetWriteListener(fn func())
	ResumeWrites()
	SuspendWrites()

	// AwaitWritable blocks until a write could make progress.
	AwaitWritable(ctx context.Context) error

	// AwaitFlushed blocks until every buffered byte has been written.
	AwaitFlushed(ctx context.Context) error

	// OnClose registers fn to run once when the sink closes. If the sink is
	// already closed fn runs immediately.
	OnClose(fn func())

	// Close releases the sink. Closing before ShutdownWrites aborts the
	// underlying connection. Close is idempotent.
	Close() error
}
