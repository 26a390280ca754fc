package fileserve

import (
	"context"

	"github.com/marmos91/dittoserve/pkg/channel"
	"github.com/marmos91/dittoserve/pkg/executor"
)

// HTTP methods the server understands.
const (
	MethodGet  = "GET"
	MethodHead = "HEAD"
)

// Response header names set by the server.
const (
	HeaderContentLength = "Content-Length"
	HeaderContentType   = "Content-Type"
)

// Exchange is one request/response pair as seen by the file server. It is
// implemented by the HTTP front end.
type Exchange interface {
	// Method returns the request method as sent by the client.
	Method() string

	// DiscardRequestBody drops any request body still unread.
	DiscardRequestBody()

	// SetHeader sets a response header. Headers must be set before the
	// first body byte is written.
	SetHeader(name, value string)

	// SetStatus sets the response status code. The default is 200.
	SetStatus(code int)

	// ResponseSink returns the response body sink, or false if none is
	// available; in that case the caller has already set an error state.
	ResponseSink() (channel.Sink, bool)

	// Complete ends the exchange. It is safe to call more than once and
	// from any goroutine; only the first call has an effect.
	Complete()

	// Worker runs blocking tasks off the connection goroutine.
	Worker() executor.Executor

	// IO runs tasks on the connection loop.
	IO() executor.Executor

	// Context is cancelled when the connection goes away.
	Context() context.Context
}
