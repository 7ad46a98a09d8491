package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryResultCache_Put(t *testing.T) {
	cache := NewInMemoryResultCache()
	defer cache.Close()

	ctx := context.Background()

	t.Run("stores a new result", func(t *testing.T) {
		stored, err := cache.Put(ctx, "req-1", []byte(`{"id":"a"}`), 1*time.Hour)
		require.NoError(t, err)
		assert.True(t, stored, "new key should return true")
	})

	t.Run("keeps the first result for a key", func(t *testing.T) {
		stored, err := cache.Put(ctx, "req-2", []byte("original"), 1*time.Hour)
		require.NoError(t, err)
		assert.True(t, stored)

		stored, err = cache.Put(ctx, "req-2", []byte("retry"), 1*time.Hour)
		require.NoError(t, err)
		assert.False(t, stored, "retried request must not replace the original")

		value, err := cache.Get(ctx, "req-2")
		require.NoError(t, err)
		assert.Equal(t, []byte("original"), value)
	})

	t.Run("accepts a new result after expiration", func(t *testing.T) {
		stored, err := cache.Put(ctx, "req-3", []byte("first"), 10*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, stored)

		time.Sleep(20 * time.Millisecond)

		stored, err = cache.Put(ctx, "req-3", []byte("second"), 1*time.Hour)
		require.NoError(t, err)
		assert.True(t, stored, "expired key should accept a new result")
	})
}

func TestInMemoryResultCache_Get(t *testing.T) {
	cache := NewInMemoryResultCache()
	defer cache.Close()

	ctx := context.Background()

	t.Run("returns nil for an unknown key", func(t *testing.T) {
		value, err := cache.Get(ctx, "unknown")
		require.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("returns the stored result", func(t *testing.T) {
		_, err := cache.Put(ctx, "stored", []byte("payload"), 1*time.Hour)
		require.NoError(t, err)

		value, err := cache.Get(ctx, "stored")
		require.NoError(t, err)
		assert.Equal(t, []byte("payload"), value)
	})

	t.Run("returns nil for an expired result", func(t *testing.T) {
		_, err := cache.Put(ctx, "expired", []byte("stale"), 10*time.Millisecond)
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)

		value, err := cache.Get(ctx, "expired")
		require.NoError(t, err)
		assert.Nil(t, value, "expired result should not replay")
	})
}

func TestInMemoryResultCache_Cleanup(t *testing.T) {
	cache := NewInMemoryResultCache()
	defer cache.Close()

	ctx := context.Background()

	cache.Put(ctx, "short-lived-1", []byte("a"), 10*time.Millisecond)
	cache.Put(ctx, "short-lived-2", []byte("b"), 10*time.Millisecond)
	cache.Put(ctx, "long-lived", []byte("c"), 1*time.Hour)

	assert.Equal(t, 3, cache.Size())

	time.Sleep(20 * time.Millisecond)

	// Manually trigger cleanup
	cache.cleanup()

	assert.Equal(t, 1, cache.Size())

	value, err := cache.Get(ctx, "long-lived")
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), value)
}

func TestInMemoryResultCache_ConcurrentPut(t *testing.T) {
	cache := NewInMemoryResultCache()
	defer cache.Close()

	ctx := context.Background()
	const numGoroutines = 100
	const key = "concurrent-request"

	results := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			stored, err := cache.Put(ctx, key, []byte("result"), 1*time.Hour)
			if err != nil {
				results <- false
			} else {
				results <- stored
			}
		}()
	}

	winners := 0
	losers := 0
	for i := 0; i < numGoroutines; i++ {
		if <-results {
			winners++
		} else {
			losers++
		}
	}

	// Exactly one goroutine should have stored the result
	assert.Equal(t, 1, winners, "exactly one writer should win")
	assert.Equal(t, numGoroutines-1, losers, "all others should replay")
}

func TestInMemoryResultCache_Close(t *testing.T) {
	cache := NewInMemoryResultCache()

	err := cache.Close()
	assert.NoError(t, err)

	// Multiple closes should be safe
	err = cache.Close()
	assert.NoError(t, err)
}
