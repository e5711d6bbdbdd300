package rpcpool

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// CacheEntry is one stored RPC result. StoredAt and TTL stay on the
// entry so the invoker can judge staleness at read time instead of the
// store deciding for it.
type CacheEntry struct {
	Value    json.RawMessage
	StoredAt time.Time
	TTL      time.Duration
}

// Age returns how old the entry is.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Fresh reports whether the entry is within its original TTL.
func (e *CacheEntry) Fresh(now time.Time) bool {
	return e.Age(now) <= e.TTL
}

// Cache is the injected fallback store. The pool layer never treats it
// as primary truth: entries are written after live successes and read
// only when every endpoint has been exhausted.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, value json.RawMessage, ttl time.Duration)
	Delete(key string)
	Clear()
}

// CacheKey fingerprints a method+params pair. Params are hashed over
// their JSON encoding so logically equal calls collide.
func CacheKey(method string, params interface{}) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	if params != nil {
		if raw, err := json.Marshal(params); err == nil {
			h.Write(raw)
		}
	}
	return method + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// staleFallbackFactor bounds how stale a degraded read may be: an
// entry is served after endpoint exhaustion only while younger than
// this multiple of its original TTL.
const staleFallbackFactor = 2

// InMemoryCache is the default Cache. Entries survive past their TTL
// (they may still be served degraded) and are evicted lazily once even
// the fallback window has passed.
type InMemoryCache struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
	// fallbackFactor scales TTL into the hard eviction horizon.
	fallbackFactor int
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		store:          make(map[string]*CacheEntry),
		fallbackFactor: staleFallbackFactor,
	}
}

// Get returns an entry if it is still within the fallback horizon.
// Callers check Fresh() to distinguish live-equivalent from degraded.
func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	c.mu.RLock()
	entry, ok := c.store[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if entry.Age(time.Now()) > entry.TTL*time.Duration(c.fallbackFactor) {
		c.mu.Lock()
		delete(c.store, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry, true
}

// Set stores a value with the given TTL.
func (c *InMemoryCache) Set(key string, value json.RawMessage, ttl time.Duration) {
	c.mu.Lock()
	c.store[key] = &CacheEntry{Value: value, StoredAt: time.Now(), TTL: ttl}
	c.mu.Unlock()
}

// Delete removes one entry.
func (c *InMemoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
}

// Clear removes all entries.
func (c *InMemoryCache) Clear() {
	c.mu.Lock()
	c.store = make(map[string]*CacheEntry)
	c.mu.Unlock()
}

// Len reports the number of stored entries.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}
