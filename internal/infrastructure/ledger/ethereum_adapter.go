package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/domain/tourist"
)

// chainBackend is the node surface the ledger uses. *ethclient.Client and the
// in-process simulated client both satisfy it.
type chainBackend interface {
	bind.ContractBackend
	ethereum.TransactionReader
	ethereum.BlockNumberReader
	ethereum.ChainIDReader
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// EthereumLedger implements tourist.Ledger against an EVM identity registry contract
type EthereumLedger struct {
	config   *EthereumConfig
	client   chainBackend
	closer   func()
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	operator common.Address
	registry common.Address
	chainID  *big.Int
	logger   *zap.Logger
}

// NewEthereumLedger dials the node and binds the registry contract
func NewEthereumLedger(ctx context.Context, config *EthereumConfig, logger *zap.Logger) (*EthereumLedger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	client, err := ethclient.DialContext(ctx, config.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to dial %s: %w", config.RPCURL, err)
	}

	l, err := newEthereumLedger(ctx, config, client, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	l.closer = client.Close
	return l, nil
}

func newEthereumLedger(ctx context.Context, config *EthereumConfig, client chainBackend, logger *zap.Logger) (*EthereumLedger, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(config.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEthInvalidPrivateKey, err)
	}

	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to parse registry ABI: %w", err)
	}

	chainID := new(big.Int).SetUint64(config.ChainID)
	if config.ChainID == 0 {
		chainID, err = client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("ledger: failed to read chain id: %w", err)
		}
	}

	registry := common.HexToAddress(config.ContractAddress)
	return &EthereumLedger{
		config:   config,
		client:   client,
		contract: bind.NewBoundContract(registry, parsed, client, client, client),
		key:      key,
		operator: crypto.PubkeyToAddress(key.PublicKey),
		registry: registry,
		chainID:  chainID,
		logger:   logger.Named("ledger"),
	}, nil
}

// Close releases the RPC connection
func (l *EthereumLedger) Close() {
	if l.closer != nil {
		l.closer()
	}
}

// OperatorAddress returns the signing account
func (l *EthereumLedger) OperatorAddress() string {
	return l.operator.Hex()
}

// ContractAddress returns the registry address
func (l *EthereumLedger) ContractAddress() string {
	return l.registry.Hex()
}

// SubmitRegistration sends registerTourist
func (l *EthereumLedger) SubmitRegistration(ctx context.Context, req tourist.RegistrationRequest, fee tourist.FeeCap) (string, error) {
	return l.transact(ctx, fee, methodRegister,
		common.HexToHash(req.ChainID),
		common.HexToAddress(req.OwnerWallet),
		req.KYCRef,
		req.EmergencyRef,
		uint64(req.ValidUntil.Unix()),
		req.TrackingOptIn,
	)
}

// SubmitUpdate sends updateByOwner
func (l *EthereumLedger) SubmitUpdate(ctx context.Context, chainID, payloadRef string, trackingOptIn bool, fee tourist.FeeCap) (string, error) {
	return l.transact(ctx, fee, methodUpdate, common.HexToHash(chainID), payloadRef, trackingOptIn)
}

// SubmitScorePush sends pushScore
func (l *EthereumLedger) SubmitScorePush(ctx context.Context, chainID, scoreRef string, fee tourist.FeeCap) (string, error) {
	return l.transact(ctx, fee, methodPushScore, common.HexToHash(chainID), scoreRef)
}

func (l *EthereumLedger) transact(ctx context.Context, fee tourist.FeeCap, method string, params ...interface{}) (string, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(l.key, l.chainID)
	if err != nil {
		return "", fmt.Errorf("ledger: failed to build transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = fee.GasLimit
	if fee.MaxFeeGwei.IsPositive() {
		opts.GasFeeCap = gweiToWei(fee.MaxFeeGwei)
	}
	if fee.MaxPriorityFeeGwei.IsPositive() {
		opts.GasTipCap = gweiToWei(fee.MaxPriorityFeeGwei)
	}

	tx, err := l.contract.Transact(opts, method, params...)
	if err != nil {
		return "", classifyError(method, err)
	}
	l.logger.Debug("Transaction sent",
		zap.String("method", method),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("nonce", tx.Nonce()),
	)
	return tx.Hash().Hex(), nil
}

// IsRegistered reads getTourist and treats a non-zero createdAt as registered.
// The "Unknown tourist" revert means the identity does not exist yet.
func (l *EthereumLedger) IsRegistered(ctx context.Context, chainID string) (bool, error) {
	var out []interface{}
	err := l.contract.Call(l.callOpts(ctx), &out, methodGetTourist, common.HexToHash(chainID))
	if err != nil {
		if strings.Contains(revertReason(err), unknownTouristRevert) || strings.Contains(err.Error(), unknownTouristRevert) {
			return false, nil
		}
		return false, classifyError(methodGetTourist, err)
	}
	if len(out) <= getTouristCreated {
		return false, tourist.NewLedgerError(tourist.ErrNetwork, methodGetTourist, "unexpected output length")
	}
	createdAt := *abi.ConvertType(out[getTouristCreated], new(uint64)).(*uint64)
	return createdAt > 0, nil
}

// AwaitFinality polls for the receipt and then for the confirmation depth.
func (l *EthereumLedger) AwaitFinality(ctx context.Context, handle string, confirmations uint64) error {
	const op = "await_finality"
	if confirmations == 0 {
		confirmations = 1
	}
	hash := common.HexToHash(handle)
	ticker := time.NewTicker(l.config.ReceiptPollInterval)
	defer ticker.Stop()

	misses := 0
	for {
		receipt, err := l.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return tourist.NewLedgerError(tourist.ErrReverted, op,
					fmt.Sprintf("tx %s reverted in block %s", handle, receipt.BlockNumber))
			}
			head, err := l.client.BlockNumber(ctx)
			if err != nil {
				return classifyError(op, err)
			}
			if head+1 >= receipt.BlockNumber.Uint64()+confirmations {
				return nil
			}
		case errors.Is(err, ethereum.NotFound):
			_, _, txErr := l.client.TransactionByHash(ctx, hash)
			if errors.Is(txErr, ethereum.NotFound) {
				misses++
				if misses >= l.config.DropAfterMisses {
					return tourist.NewLedgerError(tourist.ErrDropped, op, fmt.Sprintf("tx %s no longer known to the node", handle))
				}
			} else {
				misses = 0
			}
		default:
			if ctx.Err() == nil {
				l.logger.Warn("Receipt poll failed", zap.String("tx_hash", handle), zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			return tourist.NewLedgerError(tourist.ErrNetwork, op, fmt.Sprintf("tx %s: %v", handle, ctx.Err()))
		case <-ticker.C:
		}
	}
}

// AccountBalance returns the operator balance in ether
func (l *EthereumLedger) AccountBalance(ctx context.Context) (decimal.Decimal, error) {
	bal, err := l.client.BalanceAt(ctx, l.operator, nil)
	if err != nil {
		return decimal.Zero, classifyError("balance", err)
	}
	return decimal.NewFromBigInt(bal, -18), nil
}

// NetworkIdentity returns the node's chain id
func (l *EthereumLedger) NetworkIdentity(ctx context.Context) (tourist.NetworkIdentity, error) {
	id, err := l.client.ChainID(ctx)
	if err != nil {
		return tourist.NetworkIdentity{}, classifyError("chain_id", err)
	}
	name := l.config.NetworkName
	if name == "" {
		name = fmt.Sprintf("chain-%s", id)
	}
	return tourist.NetworkIdentity{Name: name, ChainID: id.Uint64()}, nil
}

// HasOperatorRole checks the ORACLE_ROLE grant
func (l *EthereumLedger) HasOperatorRole(ctx context.Context) (bool, error) {
	return l.hasRole(ctx, OracleRole)
}

func (l *EthereumLedger) hasRole(ctx context.Context, role common.Hash) (bool, error) {
	var out []interface{}
	if err := l.contract.Call(l.callOpts(ctx), &out, methodHasRole, role, l.operator); err != nil {
		return false, classifyError(methodHasRole, err)
	}
	if len(out) == 0 {
		return false, nil
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

// EstimateFee returns the latest base fee and the suggested tip in gwei
func (l *EthereumLedger) EstimateFee(ctx context.Context) (tourist.FeeEstimate, error) {
	head, err := l.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return tourist.FeeEstimate{}, classifyError("fee", err)
	}
	tip, err := l.client.SuggestGasTipCap(ctx)
	if err != nil {
		return tourist.FeeEstimate{}, classifyError("fee", err)
	}
	est := tourist.FeeEstimate{PriorityFeeGwei: weiToGwei(tip)}
	if head.BaseFee != nil {
		est.BaseFeeGwei = weiToGwei(head.BaseFee)
	}
	return est, nil
}

// InspectContract reports deployment state for diagnostics.
func (l *EthereumLedger) InspectContract(ctx context.Context) (ContractReport, error) {
	code, err := l.client.CodeAt(ctx, l.registry, nil)
	if err != nil {
		return ContractReport{}, classifyError("code", err)
	}
	report := ContractReport{CodeSize: len(code)}
	if len(code) == 0 {
		return report, nil
	}
	if admin, err := l.hasRole(ctx, common.Hash{}); err == nil {
		report.AdminRole = admin
	}
	var out []interface{}
	if err := l.contract.Call(l.callOpts(ctx), &out, methodPaused); err == nil && len(out) > 0 {
		report.Paused = *abi.ConvertType(out[0], new(bool)).(*bool)
		report.PausedKnown = true
	}
	return report, nil
}

func (l *EthereumLedger) callOpts(ctx context.Context) *bind.CallOpts {
	return &bind.CallOpts{Context: ctx, From: l.operator}
}

// classifyError maps node and contract errors onto the ledger error kinds,
// keeping the verbatim reason.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if reason := revertReason(err); reason != "" {
		msg = reason
	}
	lower := strings.ToLower(msg)

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return tourist.NewLedgerError(tourist.ErrNetwork, op, msg)
	case strings.Contains(lower, "insufficient funds"):
		return tourist.NewLedgerError(tourist.ErrInsufficientFunds, op, msg)
	case strings.Contains(lower, "already registered"):
		return tourist.NewLedgerError(tourist.ErrAlreadyRegistered, op, msg)
	case strings.Contains(lower, "validuntil"), strings.Contains(lower, "expired"):
		return tourist.NewLedgerError(tourist.ErrInvalidExpiry, op, msg)
	case strings.Contains(lower, "execution reverted"), strings.Contains(lower, "revert"):
		return tourist.NewLedgerError(tourist.ErrReverted, op, msg)
	default:
		return tourist.NewLedgerError(tourist.ErrNetwork, op, msg)
	}
}

// revertReason decodes an Error(string) payload attached to an RPC error.
func revertReason(err error) string {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return ""
	}
	data, ok := de.ErrorData().(string)
	if !ok {
		return ""
	}
	reason, uerr := abi.UnpackRevert(common.FromHex(data))
	if uerr != nil {
		return ""
	}
	return reason
}

func gweiToWei(g decimal.Decimal) *big.Int {
	return g.Shift(9).BigInt()
}

func weiToGwei(w *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(w, -9)
}

var _ tourist.Ledger = (*EthereumLedger)(nil)
