package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tsafe/backend/internal/domain/shared"
)

// idempotencySweepEvery is how often MarkProcessed purges expired keys.
const idempotencySweepEvery = time.Minute

// InMemoryIdempotencyStore keeps processed request keys in process memory.
// Suitable for single-instance deployments and tests; expired keys are
// purged lazily on write, so no background goroutine is needed.
type InMemoryIdempotencyStore struct {
	mu        sync.Mutex
	expiresAt map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewInMemoryIdempotencyStore creates an empty store
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{
		expiresAt: make(map[string]time.Time),
		now:       time.Now,
	}
}

// MarkProcessed records key for ttl. It reports true only for the first
// caller while the key is live.
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)
	if exp, ok := s.expiresAt[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.expiresAt[key] = now.Add(ttl)
	return true, nil
}

// Release forgets key
func (s *InMemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.expiresAt, key)
	return nil
}

// IsProcessed reports whether key is marked and not yet expired
func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.expiresAt[key]
	return ok && s.now().Before(exp), nil
}

// Close is a no-op; the store holds no goroutines or connections
func (s *InMemoryIdempotencyStore) Close() error {
	return nil
}

// sweep drops expired keys at most once per idempotencySweepEvery. Callers
// hold s.mu.
func (s *InMemoryIdempotencyStore) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < idempotencySweepEvery {
		return
	}
	for key, exp := range s.expiresAt {
		if !now.Before(exp) {
			delete(s.expiresAt, key)
		}
	}
	s.lastSweep = now
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
