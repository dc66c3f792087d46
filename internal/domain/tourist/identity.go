package tourist

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
)

var (
	walletPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	chainIDPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)
)

// DeriveChainID returns the on-chain identity handle for a tourist: the
// keccak256 digest of the storage identifier's canonical string form,
// hex-encoded with a 0x prefix. The same id always yields the same handle.
func DeriveChainID(id uuid.UUID) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(id.String()))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// IsValidChainID reports whether s looks like a derived identity handle.
func IsValidChainID(s string) bool {
	return chainIDPattern.MatchString(s)
}

// IsValidWallet reports whether s is a 0x-prefixed 20-byte hex account address.
func IsValidWallet(s string) bool {
	return walletPattern.MatchString(s)
}

// NormalizeWallet lower-cases the hex digits of an account address.
func NormalizeWallet(s string) string {
	return "0x" + strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
}
