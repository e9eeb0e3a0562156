package secrets

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CacheConfig configures the secret cache.
type CacheConfig struct {
	// TTL is how long a value is reused. 0 disables the cache.
	TTL time.Duration

	// Clock is the time source. Nil uses the real clock.
	Clock clockwork.Clock
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Cache holds resolved secrets until they expire.
type Cache struct {
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCache creates a cache.
func NewCache(cfg CacheConfig) *Cache {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Cache{ttl: cfg.TTL, clock: cfg.Clock, entries: make(map[string]cacheEntry)}
}

// Get returns a value that has not expired.
func (c *Cache) Get(name string) (string, bool) {
	if c.ttl <= 0 {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok {
		return "", false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, name)
		return "", false
	}
	return e.value, true
}

// Set stores a value for the TTL.
func (c *Cache) Set(name, value string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = cacheEntry{value: value, expiresAt: c.clock.Now().Add(c.ttl)}
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
