package cache

import (
	"sync"
	"time"
)

// Key addresses one issued URL. SourceHash is the content version; a changed
// document can never collide with stale entries.
type Key struct {
	DocumentID string
	SourceHash string
	Variant    int
}

type entry struct {
	url       string
	expiresAt time.Time
}

// URLCache is an in-memory TTL cache of signed thumbnail URLs. It avoids
// re-invoking the storage provider's signing call for repeat reads of a
// still-valid URL; it is not a source of truth for object existence.
type URLCache struct {
	mu         sync.RWMutex
	entries    map[Key]entry
	maxEntries int
}

func NewURLCache(maxEntries int) *URLCache {
	if maxEntries <= 0 {
		maxEntries = 4000
	}
	return &URLCache{
		entries:    make(map[Key]entry),
		maxEntries: maxEntries,
	}
}

// Get returns the cached URL and remaining TTL. Expired entries are evicted
// lazily on read; an entry never outlives the TTL granted at issuance.
func (c *URLCache) Get(key Key) (string, time.Duration, bool) {
	c.mu.RLock()
	e, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return "", 0, false
	}
	remaining := time.Until(e.expiresAt)
	if remaining <= 0 {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return "", 0, false
	}
	return e.url, remaining, true
}

// Put stores a freshly issued URL for the TTL the storage provider granted.
func (c *URLCache) Put(key Key, url string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictSoonest()
	}
	c.entries[key] = entry{url: url, expiresAt: time.Now().Add(ttl)}
}

func (c *URLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictSoonest drops the entry closest to expiry. Caller holds the lock.
func (c *URLCache) evictSoonest() {
	var (
		victim Key
		found  bool
		oldest time.Time
	)
	for key, e := range c.entries {
		if !found || e.expiresAt.Before(oldest) {
			victim = key
			oldest = e.expiresAt
			found = true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}
