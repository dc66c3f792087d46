package tourist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger error kinds. LedgerError values match these with errors.Is.
var (
	ErrAlreadyRegistered = errors.New("tourist already registered on ledger")
	ErrInvalidExpiry     = errors.New("validUntil must be in the future")
	ErrNetwork           = errors.New("ledger network error")
	ErrInsufficientFunds = errors.New("insufficient funds for ledger fees")
	ErrReverted          = errors.New("transaction failed on ledger")
	ErrDropped           = errors.New("transaction dropped before finality")
)

// LedgerError carries the ledger's verbatim reason together with its kind.
type LedgerError struct {
	Kind   error
	Op     string
	Reason string
}

func (e *LedgerError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Reason)
}

// Unwrap exposes the kind so errors.Is(err, ErrNetwork) works.
func (e *LedgerError) Unwrap() error {
	return e.Kind
}

// NewLedgerError builds a LedgerError.
func NewLedgerError(kind error, op, reason string) *LedgerError {
	return &LedgerError{Kind: kind, Op: op, Reason: reason}
}

// FeeCap bounds what a single submission may spend.
type FeeCap struct {
	GasLimit           uint64
	MaxFeeGwei         decimal.Decimal
	MaxPriorityFeeGwei decimal.Decimal
}

// RegistrationRequest holds the arguments of a ledger registration.
type RegistrationRequest struct {
	ChainID       string
	OwnerWallet   string
	KYCRef        string
	EmergencyRef  string
	ValidUntil    time.Time
	TrackingOptIn bool
}

// NetworkIdentity names the ledger network the client talks to.
type NetworkIdentity struct {
	Name    string
	ChainID uint64
}

// FeeEstimate is the network's current fee suggestion.
type FeeEstimate struct {
	BaseFeeGwei     decimal.Decimal
	PriorityFeeGwei decimal.Decimal
}

// Ledger is the port to the remote append-only ledger. Submissions are
// two-phase: a Submit call returns a handle once the node accepts the
// transaction, and AwaitFinality blocks until the requested confirmation
// depth is reached or the submission is known to have failed.
type Ledger interface {
	// SubmitRegistration anchors a new identity.
	SubmitRegistration(ctx context.Context, req RegistrationRequest, fee FeeCap) (string, error)

	// SubmitUpdate anchors a new profile payload for an existing identity.
	SubmitUpdate(ctx context.Context, chainID, payloadRef string, trackingOptIn bool, fee FeeCap) (string, error)

	// SubmitScorePush anchors an opaque safety score payload.
	SubmitScorePush(ctx context.Context, chainID, scoreRef string, fee FeeCap) (string, error)

	// IsRegistered reads whether the identity already has a registration on the ledger.
	IsRegistered(ctx context.Context, chainID string) (bool, error)

	// AwaitFinality returns nil once the submission has the requested confirmations.
	AwaitFinality(ctx context.Context, handle string, confirmations uint64) error

	// AccountBalance returns the operator balance in native units.
	AccountBalance(ctx context.Context) (decimal.Decimal, error)

	// NetworkIdentity returns the network name and chain id.
	NetworkIdentity(ctx context.Context) (NetworkIdentity, error)

	// HasOperatorRole reports whether the operator may submit.
	HasOperatorRole(ctx context.Context) (bool, error)

	// EstimateFee returns the current fee suggestion.
	EstimateFee(ctx context.Context) (FeeEstimate, error)

	// OperatorAddress is the account that signs submissions.
	OperatorAddress() string

	// ContractAddress is the ledger endpoint submissions are sent to.
	ContractAddress() string
}
