package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EthereumConfig contains configuration for the EVM ledger adapter
type EthereumConfig struct {
	// RPCURL is the JSON-RPC endpoint of the node
	RPCURL string
	// PrivateKey is the hex encoded operator key used to sign submissions
	PrivateKey string
	// ContractAddress is the identity registry contract
	ContractAddress string
	// ChainID is the expected network chain id. Zero means ask the node.
	ChainID uint64
	// NetworkName is a display name for diagnostics
	NetworkName string
	// ReceiptPollInterval is how often AwaitFinality polls for receipts
	ReceiptPollInterval time.Duration
	// DropAfterMisses is how many consecutive polls may miss the transaction
	// entirely before it is reported as dropped
	DropAfterMisses int
}

// Errors for configuration validation
var (
	ErrEthMissingRPCURL          = errors.New("ledger: missing RPC URL")
	ErrEthMissingPrivateKey      = errors.New("ledger: missing operator private key")
	ErrEthInvalidPrivateKey      = errors.New("ledger: invalid operator private key")
	ErrEthMissingContractAddress = errors.New("ledger: missing contract address")
	ErrEthInvalidContractAddress = errors.New("ledger: invalid contract address")
)

// Validate validates the configuration
func (c *EthereumConfig) Validate() error {
	if c.RPCURL == "" {
		return ErrEthMissingRPCURL
	}
	if c.PrivateKey == "" {
		return ErrEthMissingPrivateKey
	}
	if len(strings.TrimPrefix(c.PrivateKey, "0x")) != 64 {
		return ErrEthInvalidPrivateKey
	}
	if c.ContractAddress == "" {
		return ErrEthMissingContractAddress
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return ErrEthInvalidContractAddress
	}
	return nil
}

func (c *EthereumConfig) applyDefaults() {
	if c.ReceiptPollInterval <= 0 {
		c.ReceiptPollInterval = 2 * time.Second
	}
	if c.DropAfterMisses <= 0 {
		c.DropAfterMisses = 5
	}
}
