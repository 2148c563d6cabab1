package websearch

import (
	"sync"
	"time"

	"calorie-app/internal/nutrition"
)

const (
	DefaultCacheTTL     = 15 * time.Minute
	DefaultCacheEntries = 1024
)

// CacheEntry is one cached estimate.
type CacheEntry struct {
	QueryKey   string
	Name       string
	Result     nutrition.Profile
	Confidence float64
	// ServingGrams is the weight of the serving the figures were read for.
	ServingGrams float64
	FetchedAt    time.Time
}

// Cache is a bounded TTL map. Expired entries are dropped when read;
// there is no background sweep.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]CacheEntry
	now        func() time.Time
}

// NewCache creates a cache holding at most maxEntries entries for ttl each.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]CacheEntry),
		now:        time.Now,
	}
}

// Get returns the entry for key if it is younger than the TTL.
func (c *Cache) Get(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return CacheEntry{}, false
	}
	if c.now().Sub(e.FetchedAt) >= c.ttl {
		delete(c.entries, key)
		return CacheEntry{}, false
	}
	return e, true
}

// Put stores e under e.QueryKey, stamping FetchedAt.
func (c *Cache) Put(e CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e.FetchedAt = now
	if _, exists := c.entries[e.QueryKey]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[e.QueryKey] = e
}

// evictLocked drops expired entries, or the oldest one if none has expired.
func (c *Cache) evictLocked(now time.Time) {
	oldestKey := ""
	var oldest time.Time
	for k, e := range c.entries {
		if now.Sub(e.FetchedAt) >= c.ttl {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.FetchedAt.Before(oldest) {
			oldestKey, oldest = k, e.FetchedAt
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
