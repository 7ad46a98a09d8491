package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryObjectStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("upload and get round-trip", func(t *testing.T) {
		storage := NewMemoryObjectStorage()

		ref, err := storage.Upload(ctx, "2024/06/invoice.pdf", []byte("pdf bytes"), "application/pdf")
		require.NoError(t, err)
		assert.Equal(t, "mem://2024/06/invoice.pdf", ref)

		data, err := storage.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, []byte("pdf bytes"), data)
	})

	t.Run("upload requires a key", func(t *testing.T) {
		storage := NewMemoryObjectStorage()

		_, err := storage.Upload(ctx, "", []byte("data"), "application/pdf")
		assert.Error(t, err)
	})

	t.Run("get of unknown reference errors", func(t *testing.T) {
		storage := NewMemoryObjectStorage()

		_, err := storage.Get(ctx, "mem://missing.pdf")
		assert.Error(t, err)
	})

	t.Run("stored bytes are isolated from the caller's slice", func(t *testing.T) {
		storage := NewMemoryObjectStorage()

		data := []byte("original")
		ref, err := storage.Upload(ctx, "file", data, "application/octet-stream")
		require.NoError(t, err)

		data[0] = 'X'

		stored, err := storage.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, []byte("original"), stored)
	})

	t.Run("delete removes the object", func(t *testing.T) {
		storage := NewMemoryObjectStorage()

		ref, err := storage.Upload(ctx, "file", []byte("data"), "application/pdf")
		require.NoError(t, err)
		assert.Equal(t, 1, storage.Size())

		require.NoError(t, storage.Delete(ctx, ref))
		assert.Equal(t, 0, storage.Size())

		// Deleting again is a no-op
		require.NoError(t, storage.Delete(ctx, ref))
	})
}
