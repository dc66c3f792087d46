package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/infrastructure/config"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("memory driver", func(t *testing.T) {
		l, err := New(ctx, config.LedgerConfig{Driver: DriverMemory}, zap.NewNop())
		require.NoError(t, err)
		assert.IsType(t, &MemoryLedger{}, l)
	})

	t.Run("ethereum driver validates before dialing", func(t *testing.T) {
		l, err := New(ctx, config.LedgerConfig{Driver: DriverEthereum}, zap.NewNop())
		assert.ErrorIs(t, err, ErrEthMissingRPCURL)
		assert.Nil(t, l)
	})

	t.Run("empty driver means ethereum", func(t *testing.T) {
		_, err := New(ctx, config.LedgerConfig{RPCURL: "http://127.0.0.1:8545"}, zap.NewNop())
		assert.ErrorIs(t, err, ErrEthMissingPrivateKey)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := New(ctx, config.LedgerConfig{Driver: "solana"}, zap.NewNop())
		assert.ErrorContains(t, err, "unknown driver")
	})
}
