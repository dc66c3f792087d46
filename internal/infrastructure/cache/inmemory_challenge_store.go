package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tsafe/backend/internal/domain/tourist"
)

// InMemoryChallengeStore keeps KYC challenges in process memory.
// Suitable for single-instance deployments and tests.
type InMemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]tourist.KYCChallenge
	now        func() time.Time
}

// NewInMemoryChallengeStore creates an empty store
func NewInMemoryChallengeStore() *InMemoryChallengeStore {
	return &InMemoryChallengeStore{
		challenges: make(map[string]tourist.KYCChallenge),
		now:        time.Now,
	}
}

// Put stores or replaces the user's challenge
func (s *InMemoryChallengeStore) Put(_ context.Context, userID string, c tourist.KYCChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[userID] = c
	return nil
}

// Get returns the outstanding challenge. Expired challenges are dropped on read.
func (s *InMemoryChallengeStore) Get(_ context.Context, userID string) (tourist.KYCChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[userID]
	if !ok {
		return tourist.KYCChallenge{}, tourist.ErrChallengeNotFound
	}
	if c.IsExpired(s.now()) {
		delete(s.challenges, userID)
		return tourist.KYCChallenge{}, tourist.ErrChallengeNotFound
	}
	return c, nil
}

// Delete removes the user's challenge
func (s *InMemoryChallengeStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, userID)
	return nil
}

// Ensure InMemoryChallengeStore implements ChallengeStore
var _ tourist.ChallengeStore = (*InMemoryChallengeStore)(nil)
