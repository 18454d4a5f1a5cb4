// Package cache memoizes extracted documents in a bounded, TTL-aware LRU.
package cache

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JakeFAU/webreader/internal/reader"
)

// Defaults applied when Config leaves a field zero.
const (
	DefaultMaxEntries = 100
	DefaultTTL        = 5 * time.Minute
)

// Config bounds the cache.
type Config struct {
	MaxEntries int
	TTL        time.Duration
}

type entry struct {
	doc      reader.Document
	storedAt time.Time
}

// Cache implements reader.Cache on top of golang-lru. Expiry is checked on read.
type Cache struct {
	entries    *lru.Cache[string, entry]
	ttl        time.Duration
	maxEntries int
	clock      reader.Clock
}

// New builds a Cache.
func New(cfg Config, clock reader.Clock) (*Cache, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if clock == nil {
		return nil, fmt.Errorf("cache: clock is required")
	}
	entries, err := lru.New[string, entry](cfg.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("cache: create lru: %w", err)
	}
	return &Cache{
		entries:    entries,
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		clock:      clock,
	}, nil
}

// Get returns a copy of the stored document. Expired entries are evicted and reported as a miss.
func (c *Cache) Get(key string) (reader.Document, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return reader.Document{}, false
	}
	if c.clock.Now().Sub(e.storedAt) > c.ttl {
		c.entries.Remove(key)
		return reader.Document{}, false
	}
	return e.doc.Clone(), true
}

// Set stores a copy of doc under key, evicting the least recently used entry when full.
func (c *Cache) Set(key string, doc reader.Document) {
	c.entries.Add(key, entry{doc: doc.Clone(), storedAt: c.clock.Now()})
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.entries.Purge()
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// MaxEntries reports the configured capacity.
func (c *Cache) MaxEntries() int {
	return c.maxEntries
}
