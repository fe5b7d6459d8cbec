// Package tilecache is the bounded, in-memory LRU cache of already
// serialized tile responses.
package tilecache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// sizeMultiplier approximates in-memory overhead on top of the serialized
// payload: twice the raw byte count.
const sizeMultiplier = 2

// hugeCapacity makes the underlying LRU's own entry-count ceiling a
// non-factor; eviction in this cache is driven entirely by the byte budget.
const hugeCapacity = 1 << 20

type entry struct {
	data      []byte
	expiresAt time.Time
	size      int64
}

// Stats are the introspection counters served by the cache-stats endpoint.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Sets      int64   `json:"sets"`
	Entries   int     `json:"entries"`
	SizeMB    float64 `json:"sizeMB"`
}

// Cache is a single bounded store shared by every request handler and the
// background sweeper; all access is serialized through mu.
type Cache struct {
	mu          sync.Mutex
	lru         *lru.Cache[string, *entry]
	ttl         time.Duration
	budgetBytes int64
	used        int64

	hits, misses, evictions, sets atomic.Int64

	logger *slog.Logger
}

// New builds a cache with the given byte budget (in MiB) and per-entry TTL.
func New(budgetMB int, ttl time.Duration, logger *slog.Logger) *Cache {
	c := &Cache{
		ttl:         ttl,
		budgetBytes: int64(budgetMB) * 1024 * 1024,
		logger:      logger,
	}
	l, _ := lru.NewWithEvict[string, *entry](hugeCapacity, c.onEvict)
	c.lru = l
	return c
}

// onEvict runs under mu (called only from within Get/Set/Sweep/Clear), so it
// touches used/evictions without its own lock.
func (c *Cache) onEvict(_ string, e *entry) {
	c.used -= e.size
	c.evictions.Add(1)
}

// Get returns a miss for an absent or TTL-expired key; an expired entry is
// deleted on the way out rather than left for the sweeper.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.lru.Remove(key)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.data, true
}

// Set inserts or replaces a tile payload, then evicts least-recently-used
// entries until the store is back under budget.
func (c *Cache) Set(key string, data []byte) {
	size := int64(len(data)) * sizeMultiplier

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.lru.Peek(key); ok {
		c.used -= old.size
	}
	c.lru.Add(key, &entry{data: data, expiresAt: time.Now().Add(c.ttl), size: size})
	c.used += size
	c.sets.Add(1)

	for c.used > c.budgetBytes {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
}

// Sweep removes every currently-expired entry and returns how many it found.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for _, k := range c.lru.Keys() {
		if e, ok := c.lru.Peek(k); ok && now.After(e.expiresAt) {
			c.lru.Remove(k)
			removed++
		}
	}
	return removed
}

// Run drives the periodic sweep until ctx is cancelled.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 && c.logger != nil {
				c.logger.Debug("tilecache: swept expired entries", "count", n)
			}
		}
	}
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Sets:      c.sets.Load(),
		Entries:   c.lru.Len(),
		SizeMB:    float64(c.used) / (1024 * 1024),
	}
}

// Clear empties the cache, used by the operational DELETE endpoint.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.used = 0
}
