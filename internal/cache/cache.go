package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Key is a structured cache key. Keys are compared by their msgpack encoding,
// so Key{"schema", "sqlite::memory:", "", "user"} is stable across processes.
type Key []any

// String encodes the key for use as a map or backend key.
func (k Key) String() string {
	b, err := msgpack.Marshal([]any(k))
	if err != nil {
		// Keys are built from strings and numbers; fall back to a readable form.
		return fmtKey(k)
	}
	return string(b)
}

// Cache is a byte-valued store with TTLs and tag-based bulk invalidation.
// Implementations must be safe for concurrent use. Failures are best effort:
// callers treat errors from Get as misses.
type Cache interface {
	// Get returns the value stored under key. The boolean is false on a miss.
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	// Set stores value under key. A zero ttl never expires.
	Set(ctx context.Context, key Key, value []byte, ttl time.Duration, tags ...string) error
	// Delete removes key.
	Delete(ctx context.Context, key Key) error
	// InvalidateTags removes every entry stored with any of the tags.
	InvalidateTags(ctx context.Context, tags ...string) error
}

// ErrMiss is returned by Decode when a cached value is absent, stale or corrupt.
var ErrMiss = errors.New("cache miss")

type memoryEntry struct {
	value   []byte
	expires time.Time
	tags    []string
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	tagged  map[string]map[string]struct{}
	now     func() time.Time

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*memoryEntry),
		tagged:  make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// Get returns the value stored under key if it has not expired.
func (c *MemoryCache) Get(_ context.Context, key Key) ([]byte, bool, error) {
	k := key.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if ok && !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.removeLocked(k, e)
		c.evictions.Add(1)
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}
	c.hits.Add(1)
	return e.value, true, nil
}

// Set stores value under key with an optional TTL and tags.
func (c *MemoryCache) Set(_ context.Context, key Key, value []byte, ttl time.Duration, tags ...string) error {
	k := key.String()
	e := &memoryEntry{value: value, tags: tags}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[k]; ok {
		c.removeLocked(k, old)
	}
	c.entries[k] = e
	for _, tag := range tags {
		set, ok := c.tagged[tag]
		if !ok {
			set = make(map[string]struct{})
			c.tagged[tag] = set
		}
		set[k] = struct{}{}
	}
	return nil
}

// Delete removes key.
func (c *MemoryCache) Delete(_ context.Context, key Key) error {
	k := key.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[k]; ok {
		c.removeLocked(k, e)
	}
	return nil
}

// InvalidateTags removes every entry carrying one of the tags.
func (c *MemoryCache) InvalidateTags(_ context.Context, tags ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, tag := range tags {
		for k := range c.tagged[tag] {
			if e, ok := c.entries[k]; ok {
				c.removeLocked(k, e)
			}
		}
		delete(c.tagged, tag)
	}
	return nil
}

// removeLocked deletes an entry and its tag index references.
// Must be called with lock held.
func (c *MemoryCache) removeLocked(k string, e *memoryEntry) {
	delete(c.entries, k)
	for _, tag := range e.tags {
		if set, ok := c.tagged[tag]; ok {
			delete(set, k)
			if len(set) == 0 {
				delete(c.tagged, tag)
			}
		}
	}
}

// Flush removes all entries.
func (c *MemoryCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*memoryEntry)
	c.tagged = make(map[string]map[string]struct{})
}

// Stats returns cache statistics.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	size := len(c.entries)
	c.mu.Unlock()
	return newStats(size, 0, c.hits.Load(), c.misses.Load(), c.evictions.Load())
}
