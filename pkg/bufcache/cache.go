// Package bufcache holds small file bodies in memory, split across
// fixed-size slices drawn from a bounded pool.
//
// An entry is created by Reserve before its contents exist and becomes
// readable once the loader calls Enable. Lookups can see an entry in either
// state. Each Lookup or Reserve hands out a reference that must be released;
// slices go back to the pool only after the entry has left the cache and
// every reference is gone, so readers never observe recycled memory.
//
// When a reservation does not fit, enabled entries are evicted in least
// recently used order. Reservations that never became enabled are reclaimed
// after the configured TTL.
package bufcache

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/bufpool"
)

// ErrClosed is returned by Close on an already closed cache.
var ErrClosed = errors.New("bufcache: closed")

const shardCount = 16

// Default sizing, matching the server defaults.
const (
	DefaultSliceSize      = 512
	DefaultMaxSize        = 512 * 20480
	DefaultReservationTTL = 30 * time.Second
)

// Eviction reasons reported to Metrics.
const (
	ReasonLRU     = "lru"
	ReasonStale   = "stale"
	ReasonRemoved = "removed"
	ReasonPurged  = "purged"
)

// Config configures a Cache. Zero values use the defaults.
type Config struct {
	// SliceSize is the size of each pooled slice in bytes.
	SliceSize int

	// MaxSize bounds the total bytes held in slices.
	MaxSize uint64

	// ReservationTTL is how long a reservation may stay un-enabled before it
	// is considered dead and reclaimed.
	ReservationTTL time.Duration

	// Metrics is optional; nil disables metrics collection.
	Metrics Metrics
}

// Stats is a point-in-time snapshot of cache state.
type Stats struct {
	Entries       int    `json:"entries"`
	Enabled       int    `json:"enabled"`
	Reserved      int    `json:"reserved"`
	UsedBytes     uint64 `json:"used_bytes"`
	CapacityBytes uint64 `json:"capacity_bytes"`
	SliceSize     int    `json:"slice_size"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Evictions     uint64 `json:"evictions"`
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// Cache is a sharded map from file identity to Entry.
type Cache struct {
	pool    *bufpool.SlicePool
	ttl     time.Duration
	metrics Metrics
	now     func() time.Time

	shards [shardCount]shard

	evictMu   sync.Mutex
	closed    atomic.Bool
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a Cache.
func New(cfg Config) *Cache {
	if cfg.SliceSize <= 0 {
		cfg.SliceSize = DefaultSliceSize
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = DefaultReservationTTL
	}

	c := &Cache{
		pool:    bufpool.NewSlicePool(cfg.SliceSize, int(cfg.MaxSize/uint64(cfg.SliceSize))),
		ttl:     cfg.ReservationTTL,
		metrics: cfg.Metrics,
		now:     time.Now,
	}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]*Entry)
	}
	return c
}

func (c *Cache) shardFor(key string) *shard {
	return &c.shards[xxhash.Sum64String(key)&(shardCount-1)]
}

// SliceSize returns the size of the slices entries are built from.
func (c *Cache) SliceSize() int { return c.pool.SliceSize() }

// Lookup returns the entry for key, or nil. A non-nil entry carries a
// reference the caller must Release. It may not be enabled yet.
func (c *Cache) Lookup(key string) *Entry {
	s := c.shardFor(key)
	now := c.now()

	s.mu.RLock()
	e := s.entries[key]
	if e != nil {
		e.acquire()
	}
	s.mu.RUnlock()

	if e == nil {
		c.recordLookup(false)
		return nil
	}

	if !e.Enabled() && now.Sub(e.created) > c.ttl {
		// Dead reservation: drop it so the next load can reserve again.
		c.remove(e, ReasonStale)
		e.Release()
		c.recordLookup(false)
		return nil
	}

	e.touch(now)
	c.recordLookup(e.Enabled())
	return e
}

// Reserve creates an entry for key with room for size bytes. It returns nil
// if key is already present or the slices cannot be found even after
// eviction. The returned entry carries the loader's reference.
func (c *Cache) Reserve(key string, size uint64) *Entry {
	if c.closed.Load() {
		return nil
	}

	n := slicesFor(size, c.pool.SliceSize())
	if n > c.pool.Budget() {
		c.recordReservation(false)
		return nil
	}

	s := c.shardFor(key)
	s.mu.RLock()
	_, exists := s.entries[key]
	s.mu.RUnlock()
	if exists {
		c.recordReservation(false)
		return nil
	}

	bufs, ok := c.pool.Allocate(n)
	if !ok {
		c.evict(n)
		bufs, ok = c.pool.Allocate(n)
	}
	if !ok {
		logger.Debug("cache reservation rejected", logger.KeyKey, key, logger.KeySlices, n)
		c.recordReservation(false)
		return nil
	}

	now := c.now()
	e := &Entry{
		key:     key,
		cache:   c,
		size:    size,
		bufs:    bufs,
		slices:  n,
		created: now,
	}
	// One reference for the map, one for the loader.
	e.refs.Store(2)
	e.touch(now)

	s.mu.Lock()
	if _, exists := s.entries[key]; exists || c.closed.Load() {
		s.mu.Unlock()
		c.pool.Free(bufs)
		c.recordReservation(false)
		return nil
	}
	s.entries[key] = e
	s.mu.Unlock()

	c.recordReservation(true)
	c.recordUsage()
	return e
}

func slicesFor(size uint64, sliceSize int) int {
	n := int((size + uint64(sliceSize) - 1) / uint64(sliceSize))
	return max(1, n)
}

// Remove drops the entry for key. Readers holding it keep their view until
// they release it.
func (c *Cache) Remove(key string) bool {
	s := c.shardFor(key)
	s.mu.RLock()
	e := s.entries[key]
	s.mu.RUnlock()
	if e == nil {
		return false
	}
	return c.remove(e, ReasonRemoved)
}

// RemovePrefix drops every entry whose key starts with prefix and returns
// how many were removed.
func (c *Cache) RemovePrefix(prefix string) int {
	var victims []*Entry
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		for k, e := range s.entries {
			if strings.HasPrefix(k, prefix) {
				victims = append(victims, e)
			}
		}
		s.mu.RUnlock()
	}

	removed := 0
	for _, e := range victims {
		if c.remove(e, ReasonRemoved) {
			removed++
		}
	}
	return removed
}

// Purge drops every entry and returns how many were removed.
func (c *Cache) Purge() int {
	return c.removeAll(ReasonPurged)
}

// Close purges the cache and rejects further reservations.
func (c *Cache) Close() error {
	if c.closed.Swap(true) {
		return ErrClosed
	}
	c.removeAll(ReasonPurged)
	return nil
}

func (c *Cache) removeAll(reason string) int {
	removed := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		victims := make([]*Entry, 0, len(s.entries))
		for _, e := range s.entries {
			victims = append(victims, e)
		}
		clear(s.entries)
		s.mu.Unlock()

		for _, e := range victims {
			c.dropped(e, reason)
			e.Release()
		}
		removed += len(victims)
	}
	if removed > 0 {
		c.recordUsage()
	}
	return removed
}

// remove deletes e from its shard if it is still the current entry for its
// key and drops the map's reference.
func (c *Cache) remove(e *Entry, reason string) bool {
	s := c.shardFor(e.key)
	s.mu.Lock()
	if s.entries[e.key] != e {
		s.mu.Unlock()
		return false
	}
	delete(s.entries, e.key)
	s.mu.Unlock()

	c.dropped(e, reason)
	e.Release()
	c.recordUsage()
	return true
}

func (c *Cache) dropped(e *Entry, reason string) {
	if reason == ReasonLRU || reason == ReasonStale {
		c.evictions.Add(1)
	}
	if c.metrics != nil {
		c.metrics.RecordEviction(reason, e.size)
	}
}

// Stats returns a snapshot of the cache.
func (c *Cache) Stats() Stats {
	st := Stats{
		CapacityBytes: uint64(c.pool.Budget()) * uint64(c.pool.SliceSize()),
		UsedBytes:     uint64(c.pool.InUse()) * uint64(c.pool.SliceSize()),
		SliceSize:     c.pool.SliceSize(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Evictions:     c.evictions.Load(),
	}
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		for _, e := range s.entries {
			st.Entries++
			if e.Enabled() {
				st.Enabled++
			} else {
				st.Reserved++
			}
		}
		s.mu.RUnlock()
	}
	return st
}

func (c *Cache) recordLookup(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if c.metrics != nil {
		c.metrics.ObserveLookup(hit)
	}
}

func (c *Cache) recordReservation(ok bool) {
	if c.metrics != nil {
		c.metrics.RecordReservation(ok)
	}
}

func (c *Cache) recordUsage() {
	if c.metrics == nil {
		return
	}
	entries := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		entries += len(s.entries)
		s.mu.RUnlock()
	}
	c.metrics.RecordUsage(entries, uint64(c.pool.InUse())*uint64(c.pool.SliceSize()))
}

// ============================================================================
// Eviction
// ============================================================================

// evict frees room for needed slices. Dead reservations go first, then
// enabled entries from least recently used. Reservations still within their
// TTL belong to in-flight loads and are never touched. Entries pinned by a
// reader would not return their slices yet, so they are skipped, and nothing
// is evicted when the unpinned entries cannot cover needed.
func (c *Cache) evict(needed int) {
	c.evictMu.Lock()
	defer c.evictMu.Unlock()

	if c.pool.Available() >= needed {
		return
	}

	type candidate struct {
		e          *Entry
		lastAccess int64
	}

	now := c.now()
	var stale []*Entry
	var lru []candidate

	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		for _, e := range s.entries {
			switch {
			case e.Enabled():
				if !e.pinned() {
					lru = append(lru, candidate{e, e.lastAccess.Load()})
				}
			case now.Sub(e.created) > c.ttl:
				stale = append(stale, e)
			}
		}
		s.mu.RUnlock()
	}

	for _, e := range stale {
		c.remove(e, ReasonStale)
	}

	reclaimable := c.pool.Available()
	for _, cand := range lru {
		reclaimable += cand.e.slices
	}
	if reclaimable < needed {
		if len(stale) > 0 {
			logger.Debug("cache eviction", logger.KeyEvicted, 0, logger.KeyReason, ReasonStale, logger.KeySlices, needed)
		}
		return
	}

	sort.Slice(lru, func(i, j int) bool {
		return lru[i].lastAccess < lru[j].lastAccess
	})

	evicted := 0
	for _, cand := range lru {
		if c.pool.Available() >= needed {
			break
		}
		if cand.e.pinned() {
			continue
		}
		if c.remove(cand.e, ReasonLRU) {
			evicted++
		}
	}

	if evicted > 0 || len(stale) > 0 {
		logger.Debug("cache eviction",
			logger.KeyEvicted, evicted,
			logger.KeyReason, "reservation",
			logger.KeySlices, needed)
	}
}
