package shared

import (
	"context"
	"time"
)

// ResultCache caches serialized operation results keyed by a caller-supplied
// request ID so that retried requests observe the original outcome.
type ResultCache interface {
	// Put stores a result under key with a TTL.
	// Returns false when a result is already cached for the key; the cached
	// value wins and the new value is discarded.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Get returns the cached result for key, or nil when absent or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Close closes the cache and releases resources
	Close() error
}

// ResultCacheConfig holds configuration for request-level result caching
type ResultCacheConfig struct {
	// TTL is the time-to-live for cached results.
	// Default: 24 hours, matching the duplicate-check replay window.
	TTL time.Duration

	// Enabled determines whether result caching is enabled
	// Default: true
	Enabled bool
}

// DefaultResultCacheConfig returns the default result cache configuration
func DefaultResultCacheConfig() ResultCacheConfig {
	return ResultCacheConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
