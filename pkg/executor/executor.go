// Package executor provides the two task executors of the serving path: a
// per-connection serial Loop for non-blocking I/O continuations and a
// bounded Workers pool for blocking file system work.
package executor

import "errors"

// ErrStopped is returned by Execute once an executor no longer accepts tasks.
var ErrStopped = errors.New("executor: stopped")

// Executor runs tasks asynchronously. Execute never runs task on the
// caller's stack.
type Executor interface {
	Execute(task func()) error
}
