package ledger

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/domain/tourist"
)

// revertingInitCode deploys a contract whose runtime is PUSH1 0 PUSH1 0 REVERT.
const revertingInitCode = "0x600580600b6000396000f360006000fd"

// plainAccount has no code, so calls to it succeed without doing anything.
var plainAccount = common.HexToAddress("0x52908400098527886E0F7030069857D2E4169EE7")

var testFee = tourist.FeeCap{
	GasLimit:           300_000,
	MaxFeeGwei:         decimal.NewFromInt(20),
	MaxPriorityFeeGwei: decimal.NewFromInt(2),
}

func newSimulatedChain(t *testing.T) *simulated.Backend {
	t.Helper()
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)

	funds := new(big.Int).Mul(big.NewInt(100), big.NewInt(params.Ether))
	backend := simulated.NewBackend(types.GenesisAlloc{
		crypto.PubkeyToAddress(key.PublicKey): {Balance: funds},
	})
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func newSimulatedLedger(t *testing.T, backend *simulated.Backend, registry common.Address, privateKey string) *EthereumLedger {
	t.Helper()
	l, err := newEthereumLedger(context.Background(), &EthereumConfig{
		PrivateKey:          privateKey,
		ContractAddress:     registry.Hex(),
		ReceiptPollInterval: 10 * time.Millisecond,
		DropAfterMisses:     3,
	}, backend.Client(), zap.NewNop())
	require.NoError(t, err)
	return l
}

func deployReverting(t *testing.T, backend *simulated.Backend) common.Address {
	t.Helper()
	ctx := context.Background()
	client := backend.Client()

	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	chainID, err := client.ChainID(ctx)
	require.NoError(t, err)
	nonce, err := client.PendingNonceAt(ctx, crypto.PubkeyToAddress(key.PublicKey))
	require.NoError(t, err)

	tx, err := types.SignTx(types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(params.GWei),
		GasFeeCap: big.NewInt(10 * params.GWei),
		Gas:       100_000,
		Data:      common.FromHex(revertingInitCode),
	}), types.LatestSignerForChainID(chainID), key)
	require.NoError(t, err)
	require.NoError(t, client.SendTransaction(ctx, tx))
	backend.Commit()

	receipt, err := client.TransactionReceipt(ctx, tx.Hash())
	require.NoError(t, err)
	require.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	return receipt.ContractAddress
}

func TestEthereumLedger_SubmitAppliesFeeCap(t *testing.T) {
	backend := newSimulatedChain(t)
	l := newSimulatedLedger(t, backend, plainAccount, testKey)
	ctx := context.Background()

	handle, err := l.SubmitUpdate(ctx, tourist.DeriveChainID(uuid.New()), "bafynew", true, testFee)
	require.NoError(t, err)
	backend.Commit()

	tx, pending, err := backend.Client().TransactionByHash(ctx, common.HexToHash(handle))
	require.NoError(t, err)
	assert.False(t, pending)
	assert.Equal(t, uint64(300_000), tx.Gas())
	assert.Equal(t, big.NewInt(20*params.GWei), tx.GasFeeCap())
	assert.Equal(t, big.NewInt(2*params.GWei), tx.GasTipCap())
	assert.Equal(t, plainAccount, *tx.To())

	assert.NoError(t, l.AwaitFinality(ctx, handle, 1))
}

func TestEthereumLedger_AwaitFinalityWaitsForDepth(t *testing.T) {
	backend := newSimulatedChain(t)
	l := newSimulatedLedger(t, backend, plainAccount, testKey)
	ctx := context.Background()

	handle, err := l.SubmitScorePush(ctx, tourist.DeriveChainID(uuid.New()), "bafyscore", testFee)
	require.NoError(t, err)
	backend.Commit()

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	err = l.AwaitFinality(short, handle, 3)
	assert.ErrorIs(t, err, tourist.ErrNetwork)

	backend.Commit()
	backend.Commit()

	bounded, cancel2 := context.WithTimeout(ctx, 5*time.Second)
	defer cancel2()
	assert.NoError(t, l.AwaitFinality(bounded, handle, 3))
}

func TestEthereumLedger_AwaitFinalityReportsRevert(t *testing.T) {
	backend := newSimulatedChain(t)
	registry := deployReverting(t, backend)
	l := newSimulatedLedger(t, backend, registry, testKey)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handle, err := l.SubmitScorePush(ctx, tourist.DeriveChainID(uuid.New()), "bafyscore", testFee)
	require.NoError(t, err)
	backend.Commit()

	err = l.AwaitFinality(ctx, handle, 1)
	require.ErrorIs(t, err, tourist.ErrReverted)
	assert.Contains(t, err.Error(), "reverted")

	_, err = l.IsRegistered(ctx, tourist.DeriveChainID(uuid.New()))
	assert.ErrorIs(t, err, tourist.ErrReverted)
}

func TestEthereumLedger_AwaitFinalityReportsDrop(t *testing.T) {
	backend := newSimulatedChain(t)
	l := newSimulatedLedger(t, backend, plainAccount, testKey)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := l.AwaitFinality(ctx, crypto.Keccak256Hash([]byte("never sent")).Hex(), 1)
	assert.ErrorIs(t, err, tourist.ErrDropped)
}

func TestEthereumLedger_UnfundedOperator(t *testing.T) {
	backend := newSimulatedChain(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	l := newSimulatedLedger(t, backend, plainAccount, hex.EncodeToString(crypto.FromECDSA(key)))
	ctx := context.Background()

	_, err = l.SubmitUpdate(ctx, tourist.DeriveChainID(uuid.New()), "bafynew", false, testFee)
	assert.ErrorIs(t, err, tourist.ErrInsufficientFunds)

	bal, err := l.AccountBalance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestEthereumLedger_NetworkIdentity(t *testing.T) {
	backend := newSimulatedChain(t)
	l := newSimulatedLedger(t, backend, plainAccount, testKey)
	ctx := context.Background()

	want, err := backend.Client().ChainID(ctx)
	require.NoError(t, err)

	id, err := l.NetworkIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Uint64(), id.ChainID)
	assert.Equal(t, "chain-"+want.String(), id.Name)

	bal, err := l.AccountBalance(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(bal))
}
