package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func newTestCache(t *testing.T, maxSize int, ttl time.Duration) (*RequestCache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	logger, _ := logtest.NewNullLogger()
	c := New(Options{MaxSize: maxSize, DefaultTTL: ttl, Now: clock.Now, Logger: logger})
	return c, clock
}

func TestGetMiss(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Minute)

	v, ok := c.Get("missing", 0)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestSetAndGet(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Minute)

	c.Set("k", "value")
	v, ok := c.Get("k", 0)
	require.True(t, ok)
	assert.Equal(t, "value", v)
}

func TestTTLBoundary(t *testing.T) {
	ttl := time.Minute

	t.Run("just before expiry is a hit", func(t *testing.T) {
		c, clock := newTestCache(t, 10, ttl)
		c.Set("k", 1)
		clock.Advance(ttl - time.Millisecond)

		_, ok := c.Get("k", 0)
		assert.True(t, ok)
	})

	t.Run("exactly at ttl is still a hit", func(t *testing.T) {
		c, clock := newTestCache(t, 10, ttl)
		c.Set("k", 1)
		clock.Advance(ttl)

		_, ok := c.Get("k", 0)
		assert.True(t, ok)
	})

	t.Run("after expiry is a miss and the entry is removed", func(t *testing.T) {
		c, clock := newTestCache(t, 10, ttl)
		c.Set("k", 1)
		clock.Advance(ttl + time.Millisecond)

		_, ok := c.Get("k", 0)
		assert.False(t, ok)
		assert.Equal(t, 0, c.Len())
	})
}

func TestTTLOverride(t *testing.T) {
	c, clock := newTestCache(t, 10, time.Hour)
	c.Set("k", 1)
	clock.Advance(2 * time.Minute)

	_, ok := c.Get("k", time.Minute)
	assert.False(t, ok, "override shorter than default should expire the entry")
}

func TestSetOverwritesAndResetsHits(t *testing.T) {
	c, clock := newTestCache(t, 10, time.Minute)
	c.Set("k", "old")
	c.Get("k", 0)
	c.Get("k", 0)

	clock.Advance(50 * time.Second)
	c.Set("k", "new")
	clock.Advance(30 * time.Second)

	v, ok := c.Get("k", 0)
	require.True(t, ok, "overwrite must refresh the timestamp")
	assert.Equal(t, "new", v)

	c.mu.Lock()
	hits := c.entries["k"].Hits
	c.mu.Unlock()
	assert.Equal(t, int64(2), hits)
}

func TestCapacityNeverExceeded(t *testing.T) {
	const maxSize = 10
	c, _ := newTestCache(t, maxSize, time.Minute)

	for i := 0; i <= maxSize; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
		assert.LessOrEqual(t, c.Len(), maxSize)
	}
	// 10 entries, then the 11th insert evicts 2 and adds 1
	assert.Equal(t, maxSize-2+1, c.Len())
}

func TestEvictsLeastReadEntries(t *testing.T) {
	const maxSize = 10
	c, clock := newTestCache(t, maxSize, time.Minute)

	for i := 0; i < maxSize; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
		clock.Advance(time.Millisecond)
	}
	// Read everything except k3 and k7
	for i := 0; i < maxSize; i++ {
		if i == 3 || i == 7 {
			continue
		}
		c.Get(fmt.Sprintf("k%d", i), 0)
	}

	c.Set("fresh", true)

	_, ok := c.Get("k3", 0)
	assert.False(t, ok)
	_, ok = c.Get("k7", 0)
	assert.False(t, ok)
	for _, k := range []string{"k0", "k1", "k2", "k4", "k5", "k6", "k8", "k9", "fresh"} {
		_, ok := c.Get(k, 0)
		assert.True(t, ok, k)
	}
}

func TestOverwriteAtCapacityDoesNotEvict(t *testing.T) {
	c, _ := newTestCache(t, 3, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	c.Set("b", 20)
	assert.Equal(t, 3, c.Len())
}

func TestSmallCacheEvictsAtLeastOne(t *testing.T) {
	c, _ := newTestCache(t, 2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	assert.Equal(t, 2, c.Len())
}

func TestClear(t *testing.T) {
	c, _ := newTestCache(t, 10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Clear()

	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("a", 0)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	c, _ := newTestCache(t, 50, time.Minute)

	assert.Equal(t, Stats{Size: 0, MaxSize: 50}, c.Stats())

	c.Set("a", 1) // hits 1
	c.Set("b", 2) // hits 1
	c.Get("a", 0) // a: 2
	c.Get("a", 0) // a: 3
	c.Get("missing", 0)

	stats := c.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 50, stats.MaxSize)
	assert.InDelta(t, 2.0, stats.AvgHitsPerEntry, 1e-9)
}

func TestLookupTypeMismatchIsMiss(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	c := New(Options{MaxSize: 10, Logger: logger})
	c.Set("k", "a string")

	n, ok := Lookup[int](c, "k", 0)
	assert.False(t, ok)
	assert.Zero(t, n)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	s, ok := Lookup[string](c, "k", 0)
	assert.True(t, ok)
	assert.Equal(t, "a string", s)
}

func TestConcurrentAccess(t *testing.T) {
	c := New(Options{MaxSize: 100, DefaultTTL: time.Minute})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", (g*31+i)%250)
				c.Set(key, i)
				c.Get(key, 0)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 100)
}
