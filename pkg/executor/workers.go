package executor

import (
	"errors"
	"sync"

	"github.com/alitto/pond/v2"
)

// Workers is a bounded pool for tasks that may block, such as opening and
// reading files.
type Workers struct {
	pool     pond.Pool
	stopOnce sync.Once
}

// NewWorkers creates a pool running at most size tasks at once. A positive
// queueSize bounds the number of waiting tasks; submitters block when the
// queue is full.
func NewWorkers(size, queueSize int) *Workers {
	if size <= 0 {
		size = 1
	}
	var opts []pond.Option
	if queueSize > 0 {
		opts = append(opts, pond.WithQueueSize(queueSize))
	}
	return &Workers{pool: pond.NewPool(size, opts...)}
}

// Execute submits task to the pool.
func (w *Workers) Execute(task func()) error {
	if err := w.pool.Go(task); err != nil {
		if errors.Is(err, pond.ErrPoolStopped) {
			return ErrStopped
		}
		return err
	}
	return nil
}

// Running returns the number of tasks currently executing.
func (w *Workers) Running() int64 { return w.pool.RunningWorkers() }

// Waiting returns the number of queued tasks.
func (w *Workers) Waiting() uint64 { return w.pool.WaitingTasks() }

// MaxConcurrency returns the pool size.
func (w *Workers) MaxConcurrency() int { return w.pool.MaxConcurrency() }

// Stop waits for queued and running tasks and rejects new ones. Later calls
// are no-ops.
func (w *Workers) Stop() {
	w.stopOnce.Do(w.pool.StopAndWait)
}
