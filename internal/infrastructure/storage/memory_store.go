package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBlobStore keeps blobs in process memory. Use it for local runs and tests.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryBlobStore creates an empty MemoryBlobStore
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

// Put stores a copy of data
func (s *MemoryBlobStore) Put(_ context.Context, data []byte) (string, error) {
	ref := ContentID(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ref]; !ok {
		s.blobs[ref] = append([]byte(nil), data...)
	}
	return ref, nil
}

// Get returns a copy of the stored blob
func (s *MemoryBlobStore) Get(_ context.Context, ref string) ([]byte, error) {
	if !IsContentID(ref) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, ref)
	}
	return append([]byte(nil), data...), nil
}

// Exists reports whether ref is stored
func (s *MemoryBlobStore) Exists(_ context.Context, ref string) (bool, error) {
	if !IsContentID(ref) {
		return false, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[ref]
	return ok, nil
}

// Len returns the number of stored blobs
func (s *MemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

var _ BlobStore = (*MemoryBlobStore)(nil)
