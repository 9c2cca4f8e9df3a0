// Package cache provides a thread-safe TTL map used for event dedupe and
// processed-record bookkeeping. The only contract callers rely on is:
// key present and age <= TTL implies the entry is treated as present.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe TTL cache with lazy expiry and optional background cleanup.
type Cache[V any] struct {
	mu          sync.RWMutex
	entries     map[string]entry[V]
	defaultTTL  time.Duration
	cleanupTick time.Duration
	now         func() time.Time
	stopCleanup chan struct{}
	stopped     bool
}

// Option customizes cache construction.
type Option[V any] func(*Cache[V])

// WithNowFunc overrides the clock, for deterministic tests.
func WithNowFunc[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) {
		c.now = now
	}
}

// New creates a cache with the given default TTL. A background cleanup
// goroutine runs every cleanupInterval; expired entries are also ignored
// lazily on Get, so cleanup only bounds memory.
func New[V any](defaultTTL, cleanupInterval time.Duration, opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		entries:     make(map[string]entry[V]),
		defaultTTL:  defaultTTL,
		cleanupTick: cleanupInterval,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	go c.cleanupLoop()

	return c
}

func (c *Cache[V]) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *Cache[V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Get retrieves a value. Returns the zero value and false if the key is
// absent or its entry has expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, exists := c.entries[key]
	now := c.now()
	c.mu.RUnlock()

	if !exists || now.After(e.expiresAt) {
		var zero V
		return zero, false
	}

	return e.value, true
}

// Contains reports whether a live entry exists for key.
func (c *Cache[V]) Contains(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Set stores a value with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with a per-key TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// Delete removes a key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry[V])
}

// Len returns the number of stored entries, including expired ones that
// have not been cleaned up yet.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Stop terminates the background cleanup goroutine. Safe to call twice.
func (c *Cache[V]) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.stopCleanup)
}
