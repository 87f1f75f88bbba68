// Package cache implements a TTL+LRU in-memory cache for fetch results.
//
// Entries expire on an independent TTL clock starting at insertion, checked
// lazily at read time; capacity pressure evicts the least-recently-accessed
// entry. One mutex guards the whole cache, which is fine at the expected
// entry counts (hundreds to low thousands).
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Config configures a Cache.
type Config struct {
	// MaxEntries bounds the cache size. Default: 1000.
	MaxEntries int

	// TTL is the per-entry lifetime from insertion. Default: 1h.
	TTL time.Duration
}

func (c Config) defaults() Config {
	if c.MaxEntries <= 0 {
		c.MaxEntries = 1000
	}
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	return c
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Size      int     `json:"size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

type entry[V any] struct {
	key       string
	val       V
	expiresAt time.Time
}

// Cache is a thread-safe TTL+LRU cache. The zero value is not usable;
// construct with New.
type Cache[V any] struct {
	mu        sync.Mutex
	cfg       Config
	order     *list.List // front = most recently accessed
	entries   map[string]*list.Element
	hits      int64
	misses    int64
	evictions int64

	now func() time.Time // swapped in tests
}

// New creates a Cache with the given config.
func New[V any](cfg Config) *Cache[V] {
	return &Cache[V]{
		cfg:     cfg.defaults(),
		order:   list.New(),
		entries: make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Key derives a cache key from a normalized target address.
func Key(target string) string {
	h := sha256.Sum256([]byte(target))
	return hex.EncodeToString(h[:])
}

// Get returns the value for key if present and unexpired. An expired entry
// is removed and counted as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	ent := el.Value.(*entry[V])
	if c.now().After(ent.expiresAt) {
		c.removeLocked(el)
		c.misses++
		return zero, false
	}
	c.order.MoveToFront(el)
	c.hits++
	return ent.val, true
}

// Put inserts or replaces the value for key, resetting its TTL clock.
// Insertion beyond capacity evicts the least-recently-accessed entry.
func (c *Cache[V]) Put(key string, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(c.cfg.TTL)
	if el, ok := c.entries[key]; ok {
		ent := el.Value.(*entry[V])
		ent.val = val
		ent.expiresAt = expires
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry[V]{key: key, val: val, expiresAt: expires})
	c.entries[key] = el

	for c.order.Len() > c.cfg.MaxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}
}

// Len returns the number of resident entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:      c.order.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *Cache[V]) removeLocked(el *list.Element) {
	ent := el.Value.(*entry[V])
	c.order.Remove(el)
	delete(c.entries, ent.key)
}
