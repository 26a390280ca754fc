package bufpool

import "sync"

// SlicePool hands out fixed-size byte slices from a hard budget. Released
// slices are kept on a free list and reused, so the pool never holds more
// than budget*sliceSize bytes.
type SlicePool struct {
	sliceSize int
	budget    int

	mu    sync.Mutex
	inUse int
	free  [][]byte
}

// NewSlicePool creates a pool of at most budget slices of sliceSize bytes.
func NewSlicePool(sliceSize, budget int) *SlicePool {
	if sliceSize <= 0 {
		sliceSize = 1
	}
	if budget < 0 {
		budget = 0
	}
	return &SlicePool{sliceSize: sliceSize, budget: budget}
}

// SliceSize returns the length of every slice handed out by the pool.
func (p *SlicePool) SliceSize() int { return p.sliceSize }

// Budget returns the total number of slices the pool may hand out.
func (p *SlicePool) Budget() int { return p.budget }

// InUse returns the number of slices currently allocated.
func (p *SlicePool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Available returns the number of slices that can still be allocated.
func (p *SlicePool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.budget - p.inUse
}

// Allocate returns n slices of full length, or false without allocating
// anything if fewer than n remain in the budget.
func (p *SlicePool) Allocate(n int) ([][]byte, bool) {
	if n <= 0 {
		return nil, n == 0
	}

	p.mu.Lock()
	if p.inUse+n > p.budget {
		p.mu.Unlock()
		return nil, false
	}
	p.inUse += n

	out := make([][]byte, 0, n)
	take := min(n, len(p.free))
	for i := 0; i < take; i++ {
		last := len(p.free) - 1
		out = append(out, p.free[last])
		p.free[last] = nil
		p.free = p.free[:last]
	}
	p.mu.Unlock()

	for len(out) < n {
		out = append(out, make([]byte, p.sliceSize))
	}
	return out, true
}

// Free returns slices to the pool. Slices may have been resliced shorter by
// the caller; they are restored to full length. Slices that did not come from
// a pool of this slice size are dropped but still credited to the budget.
func (p *SlicePool) Free(bufs [][]byte) {
	if len(bufs) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range bufs {
		if cap(b) == p.sliceSize {
			p.free = append(p.free, b[:p.sliceSize])
		}
	}
	p.inUse -= len(bufs)
	if p.inUse < 0 {
		p.inUse = 0
	}
}
