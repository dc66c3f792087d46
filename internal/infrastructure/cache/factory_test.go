package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/infrastructure/config"
)

// Port 1 is never a Redis server, so the ping fails fast.
var unreachableRedis = config.RedisConfig{Host: "127.0.0.1", Port: 1}

func TestStoreFactory_FallsBackToMemory(t *testing.T) {
	f := NewStoreFactory(unreachableRedis, WithLogger(zap.NewNop()))

	stores, err := f.CreateStores()
	require.NoError(t, err)
	defer stores.Close()

	assert.IsType(t, &InMemoryIdempotencyStore{}, stores.Idempotency)
	assert.IsType(t, &InMemoryChallengeStore{}, stores.Challenges)
	assert.Nil(t, stores.Client())
}

func TestStoreFactory_RequiresRedisWithoutFallback(t *testing.T) {
	f := NewStoreFactory(unreachableRedis, WithInMemoryFallback(false))

	_, err := f.CreateStores()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Redis required")
}
