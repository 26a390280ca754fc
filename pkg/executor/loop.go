package executor

import (
	"context"
	"sync"
)

// Loop is a serial task queue owned by one connection. Tasks run one at a
// time, in submission order, on whichever goroutine drives the loop with
// RunUntil. Any goroutine may submit.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool
	signal  chan struct{}
}

// NewLoop creates an empty loop.
func NewLoop() *Loop {
	return &Loop{signal: make(chan struct{}, 1)}
}

// Execute queues task. It returns ErrStopped after Stop.
func (l *Loop) Execute(task func()) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of queued tasks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RunPending runs queued tasks until the queue is empty, including tasks
// queued by the tasks themselves. It returns how many ran.
func (l *Loop) RunPending() int {
	ran := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return ran
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, task := range batch {
			task()
			ran++
		}
	}
}

// RunUntil runs tasks as they arrive until done is closed or ctx is
// cancelled. Tasks already queued when done closes are still run.
func (l *Loop) RunUntil(ctx context.Context, done <-chan struct{}) error {
	for {
		l.RunPending()
		select {
		case <-done:
			l.RunPending()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-l.signal:
		}
	}
}

// Stop rejects further tasks and discards queued ones.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()
}
