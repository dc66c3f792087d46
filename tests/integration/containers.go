package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"

	"github.com/tsafe/backend/internal/infrastructure/cache"
	"github.com/tsafe/backend/internal/infrastructure/config"
)

// TestRedis is a Redis container with a connected client
type TestRedis struct {
	Client *redis.Client
	Config config.RedisConfig
}

// NewTestRedis starts a Redis container and connects through the same
// constructor the server uses.
func NewTestRedis(t *testing.T) *TestRedis {
	t.Helper()

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate Redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	cfg := config.RedisConfig{Host: host, Port: port.Int()}
	client, err := cache.NewRedisClient(cfg)
	require.NoError(t, err, "Failed to connect to Redis")
	t.Cleanup(func() { _ = client.Close() })

	return &TestRedis{Client: client, Config: cfg}
}

// FlushAll clears every key between subtests
func (r *TestRedis) FlushAll(t *testing.T) {
	t.Helper()
	require.NoError(t, r.Client.FlushAll(context.Background()).Err())
}

// NewTestKafka starts a single-node Redpanda broker and returns its seed
// broker address.
func NewTestKafka(t *testing.T) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.1.7")
	require.NoError(t, err, "Failed to start Redpanda container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: Failed to terminate Redpanda container: %v", err)
		}
	})

	broker, err := container.KafkaSeedBroker(ctx)
	require.NoError(t, err, "Failed to resolve Kafka seed broker")
	return broker
}
