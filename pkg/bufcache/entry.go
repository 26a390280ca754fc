package bufcache

import (
	"sync/atomic"
	"time"
)

// Entry is one cached file body. Its slices are written by the loader that
// reserved it and are immutable once Enable has been called.
type Entry struct {
	key     string
	cache   *Cache
	size    uint64
	bufs    [][]byte
	slices  int
	created time.Time

	enabled    atomic.Bool
	refs       atomic.Int32
	lastAccess atomic.Int64
}

// Key returns the identity the entry was reserved under.
func (e *Entry) Key() string { return e.key }

// Size returns the byte count the entry was reserved for.
func (e *Entry) Size() uint64 { return e.size }

// Enabled reports whether the contents are complete and readable.
func (e *Entry) Enabled() bool { return e.enabled.Load() }

// Buffers returns the entry's slices. Only the loader holding the
// reservation may write to them, and only before Enable.
func (e *Entry) Buffers() [][]byte { return e.bufs }

// Views returns fresh slice headers over the entry's contents. Callers may
// advance or truncate the returned slices without affecting the entry or
// other readers.
func (e *Entry) Views() [][]byte {
	views := make([][]byte, len(e.bufs))
	copy(views, e.bufs)
	return views
}

// Enable marks the contents as complete. After this the slices must not be
// written.
func (e *Entry) Enable() {
	e.enabled.Store(true)
	e.touch(e.cache.now())
}

// Release drops one reference. When the entry has left the cache and the
// last reference is released, its slices return to the pool.
func (e *Entry) Release() {
	if e.refs.Add(-1) != 0 {
		return
	}
	bufs := e.bufs
	e.bufs = nil
	e.cache.pool.Free(bufs)
}

// pinned reports whether anyone besides the cache map holds the entry.
func (e *Entry) pinned() bool {
	return e.refs.Load() > 1
}

func (e *Entry) acquire() {
	e.refs.Add(1)
}

func (e *Entry) touch(now time.Time) {
	e.lastAccess.Store(now.UnixNano())
}
