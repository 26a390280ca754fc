// Package bufpool provides the byte buffers used on the file serving path.
//
// Two kinds of pool live here:
//   - Pool: a tiered sync.Pool of scratch buffers, used for streaming copies
//     of files that bypass the cache.
//   - SlicePool: a bounded allocator of fixed-size slices with a hard budget,
//     the backing store of the buffer cache.
//
// # Usage
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
//	// ... use buf ...
package bufpool

import (
	"sort"
	"sync"
)

// Default scratch buffer size classes.
const (
	// DefaultSmallSize covers response heads and small reads (4KB)
	DefaultSmallSize = 4 << 10

	// DefaultMediumSize is the streaming copy buffer (64KB)
	DefaultMediumSize = 64 << 10

	// DefaultLargeSize handles bulk reads (1MB)
	DefaultLargeSize = 1 << 20
)

type sizeClass struct {
	size int
	pool sync.Pool
}

// Pool manages byte slices organized by size class. Requests above the
// largest class are allocated directly and never pooled.
type Pool struct {
	classes []*sizeClass
}

// Config holds the size classes of a Pool. Zero values fall back to defaults.
type Config struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		SmallSize:  DefaultSmallSize,
		MediumSize: DefaultMediumSize,
		LargeSize:  DefaultLargeSize,
	}
}

// NewPool creates a new buffer pool. A nil config uses the defaults.
func NewPool(cfg *Config) *Pool {
	c := DefaultConfig()
	if cfg != nil {
		if cfg.SmallSize > 0 {
			c.SmallSize = cfg.SmallSize
		}
		if cfg.MediumSize > 0 {
			c.MediumSize = cfg.MediumSize
		}
		if cfg.LargeSize > 0 {
			c.LargeSize = cfg.LargeSize
		}
	}

	sizes := []int{c.SmallSize, c.MediumSize, c.LargeSize}
	sort.Ints(sizes)

	p := &Pool{}
	for _, size := range sizes {
		if len(p.classes) > 0 && p.classes[len(p.classes)-1].size == size {
			continue
		}
		sc := &sizeClass{size: size}
		sc.pool.New = func() any {
			buf := make([]byte, sc.size)
			return &buf
		}
		p.classes = append(p.classes, sc)
	}
	return p
}

// Get returns a byte slice of length size. The backing array comes from the
// smallest class that fits; callers must hand it back with Put.
func (p *Pool) Get(size int) []byte {
	for _, sc := range p.classes {
		if size <= sc.size {
			buf := *(sc.pool.Get().(*[]byte))
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a buffer obtained from Get. Buffers whose capacity matches no
// class are left to the garbage collector.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	for _, sc := range p.classes {
		if cap(buf) == sc.size {
			full := buf[:cap(buf)]
			sc.pool.Put(&full)
			return
		}
	}
}

// =============================================================================
// Global Pool
// =============================================================================

var globalPool = NewPool(nil)

// Get returns a byte slice of length size from the global pool.
func Get(size int) []byte {
	return globalPool.Get(size)
}

// Put returns a buffer to the global pool.
func Put(buf []byte) {
	globalPool.Put(buf)
}
