package dedup

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a bounded in-process seen-identity cache for single-node
// runs and tests. Expired entries are evicted opportunistically on writes.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]time.Time),
		ttl:     SeenTTL,
		now:     time.Now,
	}
}

func (c *MemoryCache) Seen(ctx context.Context, identity string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	markedAt, ok := c.entries[identity]
	if !ok {
		return false
	}
	if c.now().Sub(markedAt) > c.ttl {
		delete(c.entries, identity)
		return false
	}
	return true
}

func (c *MemoryCache) MarkSeen(ctx context.Context, identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[identity] = now

	// Piggyback eviction keeps the map bounded without a sweeper goroutine.
	if len(c.entries)%1024 == 0 {
		for id, markedAt := range c.entries {
			if now.Sub(markedAt) > c.ttl {
				delete(c.entries, id)
			}
		}
	}
}
