package cache

import (
	"context"
	"sync"
	"time"
)

// responseEntry is one cached payload with its expiry.
type responseEntry struct {
	payload   []byte
	expiresAt time.Time
}

// MemoryResponseCache is the in-process tier of the response cache. Expiry
// is lazy: reads past the deadline are treated as absent and removal happens
// on the explicit ClearExpired sweep, not on a background goroutine. The TTL
// bounds growth, so no LRU accounting is kept.
type MemoryResponseCache struct {
	mu      sync.RWMutex
	entries map[string]responseEntry
}

// NewMemoryResponseCache creates an empty in-process cache.
func NewMemoryResponseCache() *MemoryResponseCache {
	return &MemoryResponseCache{
		entries: make(map[string]responseEntry),
	}
}

// Get returns the payload for key when present and unexpired.
func (c *MemoryResponseCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.payload, true, nil
}

// Set stores payload under key for ttl.
func (c *MemoryResponseCache) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = responseEntry{
		payload:   payload,
		expiresAt: time.Now().Add(ttl),
	}
	c.mu.Unlock()
	return nil
}

// Delete removes key.
func (c *MemoryResponseCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// ClearExpired removes entries past their deadline and returns how many
// were dropped. Safe to run concurrently with reads and writes.
func (c *MemoryResponseCache) ClearExpired(_ context.Context) (int, error) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

// EntryCount returns the number of stored entries, expired or not.
func (c *MemoryResponseCache) EntryCount(_ context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.entries)), nil
}

// Close releases resources; the in-process tier holds none.
func (c *MemoryResponseCache) Close() error {
	return nil
}
