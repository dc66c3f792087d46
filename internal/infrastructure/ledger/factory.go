package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tsafe/backend/internal/domain/tourist"
	"github.com/tsafe/backend/internal/infrastructure/config"
)

// Ledger drivers accepted by New.
const (
	DriverEthereum = "ethereum"
	DriverMemory   = "memory"
)

// New returns the ledger selected by cfg.Driver. An empty driver means
// ethereum.
func New(ctx context.Context, cfg config.LedgerConfig, logger *zap.Logger) (tourist.Ledger, error) {
	switch cfg.Driver {
	case DriverMemory:
		logger.Warn("Using in-memory ledger; nothing is anchored on chain")
		return NewMemoryLedger(), nil
	case DriverEthereum, "":
		eth, err := NewEthereumLedger(ctx, &EthereumConfig{
			RPCURL:              cfg.RPCURL,
			PrivateKey:          cfg.PrivateKey,
			ContractAddress:     cfg.ContractAddress,
			ChainID:             cfg.ChainID,
			NetworkName:         cfg.NetworkName,
			ReceiptPollInterval: cfg.ReceiptPollInterval,
			DropAfterMisses:     cfg.DropAfterMisses,
		}, logger)
		if err != nil {
			return nil, err
		}
		return eth, nil
	default:
		return nil, fmt.Errorf("ledger: unknown driver %q", cfg.Driver)
	}
}
