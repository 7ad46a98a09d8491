// Package storage provides object storage implementations for scanned files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/erp/docledger/internal/application/pipeline"
)

// MemoryObjectStorage keeps files in an in-process map. Use it for local
// development and tests; production deployments use S3ObjectStorage.
type MemoryObjectStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryObjectStorage creates a new MemoryObjectStorage
func NewMemoryObjectStorage() *MemoryObjectStorage {
	return &MemoryObjectStorage{
		objects: make(map[string][]byte),
	}
}

// Ensure MemoryObjectStorage implements pipeline.ObjectStorage
var _ pipeline.ObjectStorage = (*MemoryObjectStorage)(nil)

// Upload stores the file bytes under mem:// reference
func (s *MemoryObjectStorage) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", errors.New("storage key is required")
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	s.mu.Lock()
	s.objects[key] = stored
	s.mu.Unlock()

	return "mem://" + key, nil
}

// Get fetches the file bytes for a reference produced by Upload
func (s *MemoryObjectStorage) Get(ctx context.Context, ref string) ([]byte, error) {
	key, err := memoryKey(ref)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %q not found", ref)
	}
	return data, nil
}

// Delete removes the stored file. Deleting an absent reference is a no-op.
func (s *MemoryObjectStorage) Delete(ctx context.Context, ref string) error {
	key, err := memoryKey(ref)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// Size returns the number of stored objects (for testing)
func (s *MemoryObjectStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func memoryKey(ref string) (string, error) {
	if ref == "" {
		return "", errors.New("storage reference is required")
	}
	if len(ref) > 6 && ref[:6] == "mem://" {
		return ref[6:], nil
	}
	return ref, nil
}
