package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/docledger/internal/domain/shared"
)

// entry represents a stored result with expiration
type entry struct {
	value     []byte
	expiresAt time.Time
}

// InMemoryResultCache implements shared.ResultCache using an in-memory map.
// This is suitable for single-instance deployments and testing.
type InMemoryResultCache struct {
	mu        sync.RWMutex
	entries   map[string]entry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryResultCache creates a new in-memory result cache.
// It starts a background goroutine to clean up expired entries.
func NewInMemoryResultCache() *InMemoryResultCache {
	cache := &InMemoryResultCache{
		entries:  make(map[string]entry),
		stopChan: make(chan struct{}),
	}

	cache.wg.Add(1)
	go cache.cleanupLoop()

	return cache
}

// Put stores a result under key with a TTL.
// Returns false when a live result already exists for the key.
func (c *InMemoryResultCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, exists := c.entries[key]; exists && time.Now().Before(e.expiresAt) {
		return false, nil
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	c.entries[key] = entry{
		value:     stored,
		expiresAt: time.Now().Add(ttl),
	}
	return true, nil
}

// Get returns the cached result for key, or nil when absent or expired
func (c *InMemoryResultCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[key]
	if !exists || time.Now().After(e.expiresAt) {
		return nil, nil
	}
	return e.value, nil
}

// Close stops the cleanup goroutine and releases resources.
// Safe to call multiple times.
func (c *InMemoryResultCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

// cleanupLoop periodically removes expired entries
func (c *InMemoryResultCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired entries from the cache
func (c *InMemoryResultCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Size returns the number of entries in the cache (for testing/monitoring)
func (c *InMemoryResultCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Ensure InMemoryResultCache implements shared.ResultCache
var _ shared.ResultCache = (*InMemoryResultCache)(nil)
