package tourist

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDeriveChainID(t *testing.T) {
	id := uuid.MustParse("5b0c6a1e-8f61-4f3c-9a0a-2d1f1b7f4e11")

	first := DeriveChainID(id)
	second := DeriveChainID(id)

	assert.Equal(t, first, second)
	assert.Equal(t, "0x763c4903cdcdc6372e4deafdab44ba05eca298ff80745d880b15fcf33e529e6d", first)
	assert.True(t, IsValidChainID(first), first)
	assert.NotEqual(t, first, DeriveChainID(uuid.New()))
}

func TestIsValidWallet(t *testing.T) {
	assert.True(t, IsValidWallet("0x52908400098527886E0F7030069857D2E4169EE7"))
	assert.True(t, IsValidWallet("0x8617e340b3d01fa5f11f306f4090fd50e238070d"))
	assert.False(t, IsValidWallet("52908400098527886E0F7030069857D2E4169EE7"))
	assert.False(t, IsValidWallet("0x1234"))
	assert.False(t, IsValidWallet("0xZZ908400098527886E0F7030069857D2E4169EE7"))
}

func TestNormalizeWallet(t *testing.T) {
	assert.Equal(t,
		"0x52908400098527886e0f7030069857d2e4169ee7",
		NormalizeWallet("0x52908400098527886E0F7030069857D2E4169EE7"))
}
