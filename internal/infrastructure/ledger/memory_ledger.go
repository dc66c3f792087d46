package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/tsafe/backend/internal/domain/tourist"
)

// Operation names recorded by MemoryLedger.
const (
	OpRegister      = "register"
	OpUpdate        = "update"
	OpScore         = "score"
	OpIsRegistered  = "is_registered"
	OpAwaitFinality = "await_finality"
)

// MemoryLedger is an in-process ledger for local development and tests.
// Submissions finalize immediately unless an outcome is scripted.
type MemoryLedger struct {
	mu         sync.Mutex
	seq        uint64
	registered map[string]bool
	pending    map[string]pendingTx
	outcomes   map[string]error
	failNext   map[string]error
	calls      map[string]int
	fees       map[string]tourist.FeeCap
	balance    decimal.Decimal
	hasRole    bool
	network    tourist.NetworkIdentity
	fee        tourist.FeeEstimate
	operator   string
	contract   string
	block      chan struct{}
}

type pendingTx struct {
	op      string
	chainID string
}

// NewMemoryLedger creates a funded, authorised in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		registered: make(map[string]bool),
		pending:    make(map[string]pendingTx),
		outcomes:   make(map[string]error),
		failNext:   make(map[string]error),
		calls:      make(map[string]int),
		fees:       make(map[string]tourist.FeeCap),
		balance:    decimal.NewFromInt(10),
		hasRole:    true,
		network:    tourist.NetworkIdentity{Name: "memory", ChainID: 1337},
		fee: tourist.FeeEstimate{
			BaseFeeGwei:     decimal.NewFromInt(1),
			PriorityFeeGwei: decimal.NewFromInt(1),
		},
		operator: "0x00000000000000000000000000000000000000aa",
		contract: "0x00000000000000000000000000000000000000bb",
	}
}

// FailNext makes the next call of op return err.
func (m *MemoryLedger) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext[op] = err
}

// SetFinalityOutcome scripts the AwaitFinality result for handle.
func (m *MemoryLedger) SetFinalityOutcome(handle string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[handle] = err
}

// SetRegistered marks chainID as already registered.
func (m *MemoryLedger) SetRegistered(chainID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered[chainID] = true
}

// SetBalance sets the operator balance.
func (m *MemoryLedger) SetBalance(b decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = b
}

// SetOperatorRole toggles the operator grant.
func (m *MemoryLedger) SetOperatorRole(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hasRole = ok
}

// SetFeeEstimate sets the reported network fee.
func (m *MemoryLedger) SetFeeEstimate(f tourist.FeeEstimate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fee = f
}

// BlockFinality makes AwaitFinality wait until the returned release func is called.
func (m *MemoryLedger) BlockFinality() (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.block = ch
	m.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns how often op was invoked.
func (m *MemoryLedger) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// SubmissionCount returns the number of submit calls of any kind.
func (m *MemoryLedger) SubmissionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[OpRegister] + m.calls[OpUpdate] + m.calls[OpScore]
}

// FeeFor returns the fee cap used by the last call of op.
func (m *MemoryLedger) FeeFor(op string) tourist.FeeCap {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fees[op]
}

// IsChainRegistered reports the in-memory registration state.
func (m *MemoryLedger) IsChainRegistered(chainID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registered[chainID]
}

func (m *MemoryLedger) begin(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	if err, ok := m.failNext[op]; ok {
		delete(m.failNext, op)
		return err
	}
	return nil
}

func (m *MemoryLedger) submit(ctx context.Context, op, chainID string, fee tourist.FeeCap) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", tourist.NewLedgerError(tourist.ErrNetwork, op, err.Error())
	}
	if err := m.begin(op); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	handle := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%s:%d", op, chainID, m.seq))).Hex()
	m.pending[handle] = pendingTx{op: op, chainID: chainID}
	m.fees[op] = fee
	return handle, nil
}

// SubmitRegistration implements tourist.Ledger.
func (m *MemoryLedger) SubmitRegistration(ctx context.Context, req tourist.RegistrationRequest, fee tourist.FeeCap) (string, error) {
	m.mu.Lock()
	already := m.registered[req.ChainID]
	m.mu.Unlock()
	if already {
		m.mu.Lock()
		m.calls[OpRegister]++
		m.mu.Unlock()
		return "", tourist.NewLedgerError(tourist.ErrAlreadyRegistered, OpRegister, "Tourist already registered")
	}
	return m.submit(ctx, OpRegister, req.ChainID, fee)
}

// SubmitUpdate implements tourist.Ledger.
func (m *MemoryLedger) SubmitUpdate(ctx context.Context, chainID, _ string, _ bool, fee tourist.FeeCap) (string, error) {
	return m.submit(ctx, OpUpdate, chainID, fee)
}

// SubmitScorePush implements tourist.Ledger.
func (m *MemoryLedger) SubmitScorePush(ctx context.Context, chainID, _ string, fee tourist.FeeCap) (string, error) {
	return m.submit(ctx, OpScore, chainID, fee)
}

// IsRegistered implements tourist.Ledger.
func (m *MemoryLedger) IsRegistered(ctx context.Context, chainID string) (bool, error) {
	if err := m.begin(OpIsRegistered); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registered[chainID], nil
}

// AwaitFinality implements tourist.Ledger.
func (m *MemoryLedger) AwaitFinality(ctx context.Context, handle string, _ uint64) error {
	if err := m.begin(OpAwaitFinality); err != nil {
		return err
	}
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return tourist.NewLedgerError(tourist.ErrNetwork, OpAwaitFinality, ctx.Err().Error())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.outcomes[handle]; ok {
		delete(m.pending, handle)
		return err
	}
	tx, ok := m.pending[handle]
	if !ok {
		return tourist.NewLedgerError(tourist.ErrDropped, OpAwaitFinality, fmt.Sprintf("unknown tx %s", handle))
	}
	delete(m.pending, handle)
	if tx.op == OpRegister {
		m.registered[tx.chainID] = true
	}
	return nil
}

// Track makes a handle known so AwaitFinality can resolve it, as if it had
// been submitted before a restart.
func (m *MemoryLedger) Track(handle, op, chainID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[handle] = pendingTx{op: op, chainID: chainID}
}

// AccountBalance implements tourist.Ledger.
func (m *MemoryLedger) AccountBalance(context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

// NetworkIdentity implements tourist.Ledger.
func (m *MemoryLedger) NetworkIdentity(context.Context) (tourist.NetworkIdentity, error) {
	return m.network, nil
}

// HasOperatorRole implements tourist.Ledger.
func (m *MemoryLedger) HasOperatorRole(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasRole, nil
}

// EstimateFee implements tourist.Ledger.
func (m *MemoryLedger) EstimateFee(context.Context) (tourist.FeeEstimate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fee, nil
}

// OperatorAddress implements tourist.Ledger.
func (m *MemoryLedger) OperatorAddress() string { return m.operator }

// ContractAddress implements tourist.Ledger.
func (m *MemoryLedger) ContractAddress() string { return m.contract }

var _ tourist.Ledger = (*MemoryLedger)(nil)
