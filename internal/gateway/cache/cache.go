// Package cache is the in-process request cache that sits in front of the
// agent's tool lookups. Entries expire lazily on read and, when the cache is
// full, the least-read fifth of the entries is dropped.
package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxSize = 1000
	DefaultTTL     = 5 * time.Minute

	// evictFraction is the share of entries dropped when the cache is full
	evictFraction = 0.2
)

// Entry is a cached payload plus the bookkeeping used for expiry and eviction
type Entry[T any] struct {
	Data      T
	Timestamp time.Time
	Hits      int64
}

// Stats is a monitoring snapshot. AvgHitsPerEntry is reads per live entry,
// not a hit ratio: misses are not counted.
type Stats struct {
	Size            int     `json:"size"`
	MaxSize         int     `json:"max_size"`
	AvgHitsPerEntry float64 `json:"avg_hits_per_entry"`
}

// Options configures a RequestCache
type Options struct {
	MaxSize    int
	DefaultTTL time.Duration
	Logger     logrus.FieldLogger
	// Now overrides the clock, for tests
	Now func() time.Time
}

// RequestCache is a size-bounded, TTL-checked memoization map.
// It is safe for concurrent use.
type RequestCache struct {
	mu         sync.Mutex
	entries    map[string]*Entry[any]
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time
	log        logrus.FieldLogger
}

// New creates a request cache
func New(opts Options) *RequestCache {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &RequestCache{
		entries:    make(map[string]*Entry[any], opts.MaxSize),
		maxSize:    opts.MaxSize,
		defaultTTL: opts.DefaultTTL,
		now:        opts.Now,
		log:        opts.Logger,
	}
}

// Get returns the value stored under key. A ttl <= 0 means the default TTL.
// Entries older than the TTL are removed and reported as a miss.
func (c *RequestCache) Get(key string, ttl time.Duration) (any, bool) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if c.now().Sub(entry.Timestamp) > ttl {
		delete(c.entries, key)
		return nil, false
	}

	entry.Hits++
	return entry.Data, true
}

// Set stores data under key with a fresh timestamp, replacing any previous
// entry. Adding a new key to a full cache evicts the least-read entries first.
func (c *RequestCache) Set(key string, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}

	c.entries[key] = &Entry[any]{
		Data:      data,
		Timestamp: c.now(),
		Hits:      1,
	}
}

// Delete removes a single key
func (c *RequestCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry
func (c *RequestCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry[any], c.maxSize)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included
func (c *RequestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns the current size and read frequency
func (c *RequestCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{Size: len(c.entries), MaxSize: c.maxSize}
	if stats.Size == 0 {
		return stats
	}

	var hits int64
	for _, e := range c.entries {
		hits += e.Hits
	}
	stats.AvgHitsPerEntry = float64(hits) / float64(stats.Size)
	return stats
}

// evictLocked drops the lowest-hit fifth of the entries. Ties go to the
// older entry, then to key order, so eviction is deterministic.
func (c *RequestCache) evictLocked() {
	type candidate struct {
		key   string
		hits  int64
		stamp time.Time
	}

	candidates := make([]candidate, 0, len(c.entries))
	for k, e := range c.entries {
		candidates = append(candidates, candidate{key: k, hits: e.Hits, stamp: e.Timestamp})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.hits != b.hits {
			return a.hits < b.hits
		}
		if !a.stamp.Equal(b.stamp) {
			return a.stamp.Before(b.stamp)
		}
		return a.key < b.key
	})

	n := int(float64(len(candidates)) * evictFraction)
	if n < 1 {
		n = 1
	}
	for _, cand := range candidates[:n] {
		delete(c.entries, cand.key)
	}

	c.log.WithFields(logrus.Fields{
		"evicted": n,
		"size":    len(c.entries),
	}).Debug("[CACHE] capacity reached, evicted least used entries")
}

// Lookup is the typed form of Get. A stored value of another type is
// treated as a miss.
func Lookup[T any](c *RequestCache, key string, ttl time.Duration) (T, bool) {
	var zero T

	v, ok := c.Get(key, ttl)
	if !ok {
		return zero, false
	}

	typed, ok := v.(T)
	if !ok {
		c.log.WithField("key", key).Warnf("[CACHE] cached value has type %T, treating as miss", v)
		return zero, false
	}
	return typed, true
}
