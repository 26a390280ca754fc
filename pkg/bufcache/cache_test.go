package bufcache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helpers
// ============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, slices int) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := New(Config{SliceSize: 8, MaxSize: uint64(8 * slices), ReservationTTL: time.Minute})
	c.now = clock.Now
	return c, clock
}

// fill reserves key, writes data and enables the entry, dropping the
// loader's reference.
func fill(t *testing.T, c *Cache, key string, data []byte) {
	t.Helper()
	e := c.Reserve(key, uint64(len(data)))
	require.NotNil(t, e, "reserve %s", key)
	rest := data
	for i, b := range e.Buffers() {
		n := copy(b, rest)
		rest = rest[n:]
		if i == len(e.Buffers())-1 {
			e.Buffers()[i] = b[:n]
		}
	}
	e.Enable()
	e.Release()
}

func contents(e *Entry) string {
	var out []byte
	for _, v := range e.Views() {
		out = append(out, v...)
	}
	return string(out)
}

type recordingMetrics struct {
	mu           sync.Mutex
	hits, misses int
	reserveOK    int
	reserveFail  int
	evictions    map[string]int
	lastEntries  int
	lastUsed     uint64
}

func (m *recordingMetrics) ObserveLookup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *recordingMetrics) RecordReservation(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.reserveOK++
	} else {
		m.reserveFail++
	}
}

func (m *recordingMetrics) RecordEviction(reason string, _ uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.evictions == nil {
		m.evictions = map[string]int{}
	}
	m.evictions[reason]++
}

func (m *recordingMetrics) RecordUsage(entries int, used uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastEntries, m.lastUsed = entries, used
}

// ============================================================================
// Reservation Tests
// ============================================================================

func TestReserve(t *testing.T) {
	t.Run("SliceCount", func(t *testing.T) {
		tests := []struct {
			size   uint64
			slices int
		}{
			{0, 1},
			{1, 1},
			{8, 1},
			{9, 2},
			{24, 3},
		}
		for _, tt := range tests {
			c, _ := newTestCache(t, 10)
			e := c.Reserve("k", tt.size)
			require.NotNil(t, e)
			assert.Len(t, e.Buffers(), tt.slices, "size %d", tt.size)
			assert.Equal(t, tt.size, e.Size())
			assert.False(t, e.Enabled())
		}
	})

	t.Run("AtMostOnePerKey", func(t *testing.T) {
		c, _ := newTestCache(t, 10)
		first := c.Reserve("k", 4)
		require.NotNil(t, first)
		assert.Nil(t, c.Reserve("k", 4))
	})

	t.Run("ConcurrentReservationsOneWinner", func(t *testing.T) {
		c, _ := newTestCache(t, 1000)
		var wg sync.WaitGroup
		var mu sync.Mutex
		winners := 0
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if e := c.Reserve("same", 16); e != nil {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, winners)
		assert.Equal(t, 2*8, int(c.Stats().UsedBytes))
	})

	t.Run("TooLargeForBudget", func(t *testing.T) {
		c, _ := newTestCache(t, 2)
		assert.Nil(t, c.Reserve("big", 17))
		assert.Zero(t, c.Stats().UsedBytes)
	})

	t.Run("ReservationVisibleBeforeEnabled", func(t *testing.T) {
		c, _ := newTestCache(t, 4)
		e := c.Reserve("k", 4)
		require.NotNil(t, e)

		got := c.Lookup("k")
		require.NotNil(t, got)
		assert.Same(t, e, got)
		assert.False(t, got.Enabled())
		got.Release()
	})

	t.Run("RejectedAfterClose", func(t *testing.T) {
		c, _ := newTestCache(t, 4)
		require.NoError(t, c.Close())
		assert.Nil(t, c.Reserve("k", 1))
		assert.ErrorIs(t, c.Close(), ErrClosed)
	})
}

// ============================================================================
// Lookup Tests
// ============================================================================

func TestLookup(t *testing.T) {
	t.Run("MissAndHit", func(t *testing.T) {
		m := &recordingMetrics{}
		c, _ := newTestCache(t, 10)
		c.metrics = m

		assert.Nil(t, c.Lookup("nope"))
		fill(t, c, "a", []byte("hello world"))

		e := c.Lookup("a")
		require.NotNil(t, e)
		defer e.Release()
		assert.True(t, e.Enabled())
		assert.Equal(t, "hello world", contents(e))

		st := c.Stats()
		assert.Equal(t, uint64(1), st.Hits)
		assert.Equal(t, uint64(1), st.Misses)
		assert.Equal(t, 1, m.hits)
		assert.Equal(t, 1, m.misses)
		assert.Equal(t, 1, m.reserveOK)
	})

	t.Run("ViewsAreIndependent", func(t *testing.T) {
		c, _ := newTestCache(t, 10)
		fill(t, c, "a", []byte("0123456789"))

		e := c.Lookup("a")
		require.NotNil(t, e)
		defer e.Release()

		v1 := e.Views()
		v1[0] = v1[0][3:]
		v1[1] = v1[1][:0]

		assert.Equal(t, "0123456789", contents(e))
	})

	t.Run("StaleReservationReclaimed", func(t *testing.T) {
		c, clock := newTestCache(t, 4)
		dead := c.Reserve("k", 4)
		require.NotNil(t, dead)
		dead.Release() // loader gave up without enabling

		clock.Advance(2 * time.Minute)
		assert.Nil(t, c.Lookup("k"))
		assert.Zero(t, c.Stats().Entries)
		assert.Zero(t, c.Stats().UsedBytes)

		assert.NotNil(t, c.Reserve("k", 4))
	})
}

// ============================================================================
// Eviction Tests
// ============================================================================

func TestEviction(t *testing.T) {
	t.Run("LeastRecentlyUsedFirst", func(t *testing.T) {
		c, clock := newTestCache(t, 3)

		fill(t, c, "a", []byte("aaaa"))
		clock.Advance(time.Second)
		fill(t, c, "b", []byte("bbbb"))
		clock.Advance(time.Second)
		fill(t, c, "c", []byte("cccc"))
		clock.Advance(time.Second)

		// Touch a so b becomes the oldest.
		c.Lookup("a").Release()
		clock.Advance(time.Second)

		fill(t, c, "d", []byte("dddd"))

		assert.Nil(t, c.Lookup("b"))
		for _, k := range []string{"a", "c", "d"} {
			e := c.Lookup(k)
			require.NotNil(t, e, k)
			e.Release()
		}
		assert.Equal(t, uint64(1), c.Stats().Evictions)
	})

	t.Run("InFlightReservationsProtected", func(t *testing.T) {
		c, _ := newTestCache(t, 2)
		loading := c.Reserve("loading", 16)
		require.NotNil(t, loading)

		assert.Nil(t, c.Reserve("other", 1))
		assert.NotNil(t, c.Lookup("loading"))
	})

	t.Run("ReadersKeepSlicesAlive", func(t *testing.T) {
		c, _ := newTestCache(t, 1)
		fill(t, c, "a", []byte("aaaaaaaa"))

		reader := c.Lookup("a")
		require.NotNil(t, reader)

		// Removing a frees nothing while the reader holds it.
		assert.True(t, c.Remove("a"))
		assert.Nil(t, c.Lookup("a"))
		assert.Nil(t, c.Reserve("b", 8))
		assert.Equal(t, "aaaaaaaa", contents(reader))

		reader.Release()
		assert.Zero(t, c.Stats().UsedBytes)
		assert.NotNil(t, c.Reserve("b", 8))
	})

	t.Run("PinnedEntriesSkipped", func(t *testing.T) {
		c, clock := newTestCache(t, 4)
		keys := []string{"a", "b", "c", "d"}
		readers := make(map[string]*Entry)
		for _, k := range keys {
			fill(t, c, k, []byte(k))
			clock.Advance(time.Second)
		}
		for _, k := range keys {
			readers[k] = c.Lookup(k)
			require.NotNil(t, readers[k], k)
		}

		// Every entry is being read: nothing can be reclaimed.
		assert.Nil(t, c.Reserve("new", 10))
		assert.Equal(t, 4, c.Stats().Entries)
		assert.Zero(t, c.Stats().Evictions)

		// One unpinned entry cannot cover two slices, so it is kept.
		readers["c"].Release()
		assert.Nil(t, c.Reserve("new", 10))
		assert.Equal(t, 4, c.Stats().Entries)
		assert.Zero(t, c.Stats().Evictions)

		// One slice is enough: only c goes.
		e := c.Reserve("new", 8)
		require.NotNil(t, e)
		e.Release()
		assert.Equal(t, uint64(1), c.Stats().Evictions)
		assert.Nil(t, c.Lookup("c"))
		for _, k := range []string{"a", "b", "d"} {
			assert.Equal(t, k, contents(readers[k]))
			readers[k].Release()
		}
	})
}

// ============================================================================
// Invalidation Tests
// ============================================================================

func TestRemoveAndPurge(t *testing.T) {
	m := &recordingMetrics{}
	c, _ := newTestCache(t, 10)
	c.metrics = m

	for i := 0; i < 4; i++ {
		fill(t, c, fmt.Sprintf("k%d", i), []byte("x"))
	}

	assert.True(t, c.Remove("k0"))
	assert.False(t, c.Remove("k0"))
	assert.Nil(t, c.Lookup("k0"))

	assert.Equal(t, 3, c.Purge())
	st := c.Stats()
	assert.Zero(t, st.Entries)
	assert.Zero(t, st.UsedBytes)
	assert.Equal(t, uint64(80), st.CapacityBytes)

	assert.Equal(t, 1, m.evictions[ReasonRemoved])
	assert.Equal(t, 3, m.evictions[ReasonPurged])
	assert.Zero(t, m.lastEntries)
	assert.Zero(t, m.lastUsed)
}

func TestRemovePrefix(t *testing.T) {
	c, _ := newTestCache(t, 10)
	for _, k := range []string{"/srv/a/1", "/srv/a/2", "/srv/ab", "/srv/b/1"} {
		fill(t, c, k, []byte("x"))
	}

	assert.Equal(t, 2, c.RemovePrefix("/srv/a/"))
	assert.Equal(t, 2, c.Stats().Entries)
	assert.Zero(t, c.RemovePrefix("/nope/"))
}

func TestStatsCountsStates(t *testing.T) {
	c, _ := newTestCache(t, 10)
	fill(t, c, "done", []byte("abc"))
	require.NotNil(t, c.Reserve("pending", 3))

	st := c.Stats()
	assert.Equal(t, 2, st.Entries)
	assert.Equal(t, 1, st.Enabled)
	assert.Equal(t, 1, st.Reserved)
	assert.Equal(t, 8, st.SliceSize)
	assert.Equal(t, uint64(16), st.UsedBytes)
}

func TestDefaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultSliceSize, c.SliceSize())
	assert.Equal(t, uint64(DefaultMaxSize), c.Stats().CapacityBytes)
	assert.Equal(t, DefaultReservationTTL, c.ttl)
}

func TestConcurrentReadersAndEviction(t *testing.T) {
	c, _ := newTestCache(t, 8)
	c.now = time.Now

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g+i)%12)
				if e := c.Lookup(key); e != nil {
					if e.Enabled() {
						assert.Equal(t, key, contents(e)[:len(key)])
					}
					e.Release()
					continue
				}
				if e := c.Reserve(key, uint64(len(key))); e != nil {
					copy(e.Buffers()[0], key)
					e.Buffers()[0] = e.Buffers()[0][:len(key)]
					e.Enable()
					e.Release()
				}
			}
		}(g)
	}
	wg.Wait()

	c.Purge()
	assert.Zero(t, c.Stats().UsedBytes)
}
