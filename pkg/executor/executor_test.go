package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Loop Tests
// ============================================================================

func TestLoopRunsInOrder(t *testing.T) {
	l := NewLoop()
	var got []int
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Execute(func() { got = append(got, i) }))
	}
	assert.Equal(t, 5, l.Pending())
	assert.Empty(t, got, "Execute must not run the task inline")

	assert.Equal(t, 5, l.RunPending())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestLoopRunsNestedTasks(t *testing.T) {
	l := NewLoop()
	var order []string
	require.NoError(t, l.Execute(func() {
		order = append(order, "outer")
		_ = l.Execute(func() { order = append(order, "inner") })
	}))

	assert.Equal(t, 2, l.RunPending())
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestLoopRunUntil(t *testing.T) {
	t.Run("RunsTasksFromOtherGoroutines", func(t *testing.T) {
		l := NewLoop()
		done := make(chan struct{})
		var ran atomic.Int32

		go func() {
			for i := 0; i < 10; i++ {
				_ = l.Execute(func() { ran.Add(1) })
				time.Sleep(time.Millisecond)
			}
			_ = l.Execute(func() { close(done) })
		}()

		require.NoError(t, l.RunUntil(context.Background(), done))
		assert.Equal(t, int32(10), ran.Load())
	})

	t.Run("ContextCancel", func(t *testing.T) {
		l := NewLoop()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := l.RunUntil(ctx, make(chan struct{}))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestLoopStop(t *testing.T) {
	l := NewLoop()
	ran := false
	require.NoError(t, l.Execute(func() { ran = true }))
	l.Stop()

	assert.ErrorIs(t, l.Execute(func() {}), ErrStopped)
	assert.Zero(t, l.RunPending())
	assert.False(t, ran)
}

// ============================================================================
// Workers Tests
// ============================================================================

func TestWorkers(t *testing.T) {
	t.Run("RunsTasks", func(t *testing.T) {
		w := NewWorkers(4, 0)
		var wg sync.WaitGroup
		var n atomic.Int32
		for i := 0; i < 20; i++ {
			wg.Add(1)
			require.NoError(t, w.Execute(func() {
				defer wg.Done()
				n.Add(1)
			}))
		}
		wg.Wait()
		w.Stop()
		assert.Equal(t, int32(20), n.Load())
		assert.Equal(t, 4, w.MaxConcurrency())
	})

	t.Run("BoundedConcurrency", func(t *testing.T) {
		w := NewWorkers(2, 0)
		var cur, peak atomic.Int32
		for i := 0; i < 10; i++ {
			require.NoError(t, w.Execute(func() {
				v := cur.Add(1)
				for {
					p := peak.Load()
					if v <= p || peak.CompareAndSwap(p, v) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				cur.Add(-1)
			}))
		}
		w.Stop()
		assert.LessOrEqual(t, peak.Load(), int32(2))
	})

	t.Run("RejectsAfterStop", func(t *testing.T) {
		w := NewWorkers(0, 0)
		w.Stop()
		assert.ErrorIs(t, w.Execute(func() {}), ErrStopped)
	})
}
