package cache

import (
	"sync"
	"time"
)

// entry is a cached value with its expiry and size.
type entry[V any] struct {
	value      V
	size       int64
	expiration time.Time
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.After(e.expiration)
}

// MemoryCache is an in-memory TTL cache bounded by a total byte budget.
// When a Set would exceed the budget, the entries closest to expiry are
// evicted first.
type MemoryCache[V any] struct {
	items    map[string]*entry[V]
	mutex    sync.RWMutex
	ttl      time.Duration
	maxBytes int64
	used     int64
	stop     chan struct{}
	now      func() time.Time
}

// NewMemoryCache creates a cache and starts its cleanup goroutine. A
// non-positive maxBytes disables the size bound.
func NewMemoryCache[V any](ttl time.Duration, maxBytes int64) *MemoryCache[V] {
	c := &MemoryCache[V]{
		items:    make(map[string]*entry[V]),
		ttl:      ttl,
		maxBytes: maxBytes,
		stop:     make(chan struct{}),
		now:      time.Now,
	}

	go c.cleanupExpired(time.Minute)

	return c
}

// Set stores a value of the given size. Values larger than the whole budget
// are not cached.
func (c *MemoryCache[V]) Set(key string, value V, size int64) {
	if c.maxBytes > 0 && size > c.maxBytes {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.removeLocked(key)
	for c.maxBytes > 0 && c.used+size > c.maxBytes && len(c.items) > 0 {
		c.evictOldestLocked()
	}

	c.items[key] = &entry[V]{
		value:      value,
		size:       size,
		expiration: c.now().Add(c.ttl),
	}
	c.used += size
}

// Get retrieves a live value.
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, exists := c.items[key]
	if !exists || e.expired(c.now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Delete removes a value from the cache
func (c *MemoryCache[V]) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.removeLocked(key)
}

// DeleteFunc removes every entry whose key matches.
func (c *MemoryCache[V]) DeleteFunc(match func(key string) bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key := range c.items {
		if match(key) {
			c.removeLocked(key)
		}
	}
}

// Clear removes all items from the cache
func (c *MemoryCache[V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*entry[V])
	c.used = 0
}

// Size returns the number of items in the cache
func (c *MemoryCache[V]) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// Bytes returns the total size of cached values.
func (c *MemoryCache[V]) Bytes() int64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.used
}

// Close stops the cleanup goroutine.
func (c *MemoryCache[V]) Close() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

func (c *MemoryCache[V]) removeLocked(key string) {
	if e, ok := c.items[key]; ok {
		c.used -= e.size
		delete(c.items, key)
	}
}

func (c *MemoryCache[V]) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, e := range c.items {
		if oldestKey == "" || e.expiration.Before(oldest) {
			oldestKey = key
			oldest = e.expiration
		}
	}
	c.removeLocked(oldestKey)
}

// cleanupExpired removes expired entries periodically
func (c *MemoryCache[V]) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.purge()
		}
	}
}

func (c *MemoryCache[V]) purge() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	for key, e := range c.items {
		if e.expired(now) {
			c.removeLocked(key)
		}
	}
}
