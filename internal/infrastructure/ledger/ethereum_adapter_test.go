package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsafe/backend/internal/domain/tourist"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func TestEthereumConfig_Validate(t *testing.T) {
	valid := func() *EthereumConfig {
		return &EthereumConfig{
			RPCURL:          "http://localhost:8545",
			PrivateKey:      "0x" + testKey,
			ContractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		}
	}

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	tests := []struct {
		name   string
		mutate func(c *EthereumConfig)
		want   error
	}{
		{"missing rpc", func(c *EthereumConfig) { c.RPCURL = "" }, ErrEthMissingRPCURL},
		{"missing key", func(c *EthereumConfig) { c.PrivateKey = "" }, ErrEthMissingPrivateKey},
		{"short key", func(c *EthereumConfig) { c.PrivateKey = "0x1234" }, ErrEthInvalidPrivateKey},
		{"missing contract", func(c *EthereumConfig) { c.ContractAddress = "" }, ErrEthMissingContractAddress},
		{"bad contract", func(c *EthereumConfig) { c.ContractAddress = "registry" }, ErrEthInvalidContractAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorIs(t, c.Validate(), tt.want)
		})
	}

	t.Run("defaults", func(t *testing.T) {
		c := valid()
		c.applyDefaults()
		assert.Equal(t, 2*time.Second, c.ReceiptPollInterval)
		assert.Equal(t, 5, c.DropAfterMisses)
	})
}

func TestRegistryABI(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	require.NoError(t, err)

	for _, m := range []string{methodRegister, methodUpdate, methodPushScore, methodGetTourist, methodHasRole, methodPaused} {
		_, ok := parsed.Methods[m]
		assert.True(t, ok, m)
	}

	id := common.HexToHash(tourist.DeriveChainID(uuid.New()))
	data, err := parsed.Pack(methodRegister,
		id,
		common.HexToAddress("0x52908400098527886E0F7030069857D2E4169EE7"),
		"bafykyc",
		"bafyemergency",
		uint64(time.Now().Add(time.Hour).Unix()),
		true,
	)
	require.NoError(t, err)
	assert.Equal(t, parsed.Methods[methodRegister].ID, data[:4])

	_, err = parsed.Pack(methodUpdate, id, "bafynew", false)
	assert.NoError(t, err)
	_, err = parsed.Pack(methodPushScore, id, "bafyscore")
	assert.NoError(t, err)
}

func TestOracleRole(t *testing.T) {
	assert.Equal(t, "0x68e79a7bf1e0bc45d0a330c573bc367f9cf464fd326078812f301165fbda4ef1", OracleRole.Hex())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"insufficient funds", errors.New("insufficient funds for gas * price + value"), tourist.ErrInsufficientFunds},
		{"already registered", errors.New("execution reverted: Tourist already registered"), tourist.ErrAlreadyRegistered},
		{"expiry", errors.New("execution reverted: validUntil in past"), tourist.ErrInvalidExpiry},
		{"revert", errors.New("execution reverted: AccessControl: missing role"), tourist.ErrReverted},
		{"timeout", fmt.Errorf("post: %w", context.DeadlineExceeded), tourist.ErrNetwork},
		{"connection", errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"), tourist.ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyError("op", tt.err)
			assert.ErrorIs(t, err, tt.want)

			var le *tourist.LedgerError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, "op", le.Op)
			assert.NotEmpty(t, le.Reason)
		})
	}

	assert.NoError(t, classifyError("op", nil))
}

type dataErr struct{ data string }

func (e dataErr) Error() string          { return "execution reverted" }
func (e dataErr) ErrorData() interface{} { return e.data }

func TestRevertReason(t *testing.T) {
	// Error(string) selector followed by the ABI encoded "Unknown tourist".
	payload := "0x08c379a0" +
		"0000000000000000000000000000000000000000000000000000000000000020" +
		"000000000000000000000000000000000000000000000000000000000000000f" +
		"556e6b6e6f776e20746f75726973740000000000000000000000000000000000"

	assert.Equal(t, "Unknown tourist", revertReason(dataErr{data: payload}))
	assert.Empty(t, revertReason(errors.New("plain")))
	assert.Empty(t, revertReason(dataErr{data: "0x1234"}))
}

func TestGweiConversion(t *testing.T) {
	wei := gweiToWei(decimal.NewFromInt(20))
	assert.Equal(t, big.NewInt(20_000_000_000), wei)
	assert.True(t, decimal.RequireFromString("1.5").Equal(weiToGwei(big.NewInt(1_500_000_000))))
}
