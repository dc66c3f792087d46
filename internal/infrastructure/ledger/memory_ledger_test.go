package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsafe/backend/internal/domain/tourist"
)

func TestMemoryLedger_RegistrationLifecycle(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	chainID := "0xabc"
	fee := tourist.FeeCap{GasLimit: 500_000, MaxFeeGwei: decimal.NewFromInt(20)}

	registered, err := l.IsRegistered(ctx, chainID)
	require.NoError(t, err)
	assert.False(t, registered)

	handle, err := l.SubmitRegistration(ctx, tourist.RegistrationRequest{ChainID: chainID, ValidUntil: time.Now().Add(time.Hour)}, fee)
	require.NoError(t, err)
	assert.Len(t, handle, 66)
	assert.Equal(t, fee, l.FeeFor(OpRegister))

	require.NoError(t, l.AwaitFinality(ctx, handle, 1))
	assert.True(t, l.IsChainRegistered(chainID))

	_, err = l.SubmitRegistration(ctx, tourist.RegistrationRequest{ChainID: chainID}, fee)
	assert.ErrorIs(t, err, tourist.ErrAlreadyRegistered)
	assert.Equal(t, 2, l.Calls(OpRegister))
}

func TestMemoryLedger_ScriptedFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("fail next submit", func(t *testing.T) {
		l := NewMemoryLedger()
		l.FailNext(OpUpdate, tourist.NewLedgerError(tourist.ErrInsufficientFunds, OpUpdate, "insufficient funds"))

		_, err := l.SubmitUpdate(ctx, "0x1", "ref", true, tourist.FeeCap{})
		assert.ErrorIs(t, err, tourist.ErrInsufficientFunds)

		_, err = l.SubmitUpdate(ctx, "0x1", "ref", true, tourist.FeeCap{})
		assert.NoError(t, err)
	})

	t.Run("scripted finality outcome", func(t *testing.T) {
		l := NewMemoryLedger()
		handle, err := l.SubmitScorePush(ctx, "0x1", "score", tourist.FeeCap{})
		require.NoError(t, err)
		l.SetFinalityOutcome(handle, tourist.NewLedgerError(tourist.ErrReverted, OpAwaitFinality, "status 0"))

		assert.ErrorIs(t, l.AwaitFinality(ctx, handle, 1), tourist.ErrReverted)
	})

	t.Run("unknown handle is dropped", func(t *testing.T) {
		l := NewMemoryLedger()
		assert.ErrorIs(t, l.AwaitFinality(ctx, "0xdead", 1), tourist.ErrDropped)
	})

	t.Run("tracked handle resolves", func(t *testing.T) {
		l := NewMemoryLedger()
		l.Track("0xbeef", OpRegister, "0x2")
		require.NoError(t, l.AwaitFinality(ctx, "0xbeef", 1))
		assert.True(t, l.IsChainRegistered("0x2"))
	})

	t.Run("blocked finality honours context", func(t *testing.T) {
		l := NewMemoryLedger()
		release := l.BlockFinality()
		defer release()
		handle, err := l.SubmitScorePush(ctx, "0x1", "score", tourist.FeeCap{})
		require.NoError(t, err)

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, l.AwaitFinality(cctx, handle, 1), tourist.ErrNetwork)
	})
}
