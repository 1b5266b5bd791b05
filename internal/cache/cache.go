package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is an in-memory TTL map with a background sweeper. Call Close to stop the sweeper.
type Cache[V any] struct {
	mu    sync.RWMutex
	items map[string]item[V]
	now   func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New starts a cache that sweeps expired entries every cleanupEvery (hourly when zero).
func New[V any](cleanupEvery time.Duration) *Cache[V] {
	if cleanupEvery <= 0 {
		cleanupEvery = time.Hour
	}
	c := &Cache[V]{
		items: make(map[string]item[V]),
		now:   time.Now,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	go c.cleanupLoop(cleanupEvery)

	return c
}

func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = item[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero V
	it, ok := c.items[key]
	if !ok || c.now().After(it.expiresAt) {
		return zero, false
	}
	return it.value, true
}

// Len counts stored entries, expired ones included until the next sweep.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the sweeper and waits for it to exit. Safe to call more than once.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

// Key hashes the given parts into a stable cache key.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache[V]) cleanupLoop(every time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache[V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, key)
		}
	}
}
