package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tsafe/backend/internal/domain/tourist"
)

// DefaultChallengePrefix namespaces KYC challenges in Redis
const DefaultChallengePrefix = "tsafe:kyc:otp:"

// RedisChallengeStore keeps KYC OTP challenges in Redis. Each key expires
// together with its challenge.
type RedisChallengeStore struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// NewRedisChallengeStore creates a challenge store on a shared Redis client
func NewRedisChallengeStore(client *redis.Client, keyPrefix string) *RedisChallengeStore {
	if keyPrefix == "" {
		keyPrefix = DefaultChallengePrefix
	}
	return &RedisChallengeStore{client: client, keyPrefix: keyPrefix, now: time.Now}
}

// Put stores the challenge until it expires
func (s *RedisChallengeStore) Put(ctx context.Context, userID string, c tourist.KYCChallenge) error {
	ttl := c.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("kyc challenge already expired")
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode kyc challenge: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+userID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store kyc challenge: %w", err)
	}
	return nil
}

// Get loads the user's outstanding challenge
func (s *RedisChallengeStore) Get(ctx context.Context, userID string) (tourist.KYCChallenge, error) {
	payload, err := s.client.Get(ctx, s.keyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return tourist.KYCChallenge{}, tourist.ErrChallengeNotFound
		}
		return tourist.KYCChallenge{}, fmt.Errorf("failed to load kyc challenge: %w", err)
	}
	var c tourist.KYCChallenge
	if err := json.Unmarshal(payload, &c); err != nil {
		return tourist.KYCChallenge{}, fmt.Errorf("failed to decode kyc challenge: %w", err)
	}
	return c, nil
}

// Delete removes the user's challenge
func (s *RedisChallengeStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.keyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("failed to delete kyc challenge: %w", err)
	}
	return nil
}

// Ensure RedisChallengeStore implements ChallengeStore
var _ tourist.ChallengeStore = (*RedisChallengeStore)(nil)
