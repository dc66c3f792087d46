package ledger

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// registryABI is the subset of the identity registry contract the adapter calls.
const registryABI = `[
  {"type":"function","name":"registerTourist","stateMutability":"nonpayable","inputs":[
    {"name":"touristId","type":"bytes32"},
    {"name":"owner","type":"address"},
    {"name":"kycCID","type":"string"},
    {"name":"emergencyCID","type":"string"},
    {"name":"validUntil","type":"uint64"},
    {"name":"trackingOptIn","type":"bool"}],"outputs":[]},
  {"type":"function","name":"updateByOwner","stateMutability":"nonpayable","inputs":[
    {"name":"touristId","type":"bytes32"},
    {"name":"emergencyCID","type":"string"},
    {"name":"trackingOptIn","type":"bool"}],"outputs":[]},
  {"type":"function","name":"pushScore","stateMutability":"nonpayable","inputs":[
    {"name":"touristId","type":"bytes32"},
    {"name":"scoreCID","type":"string"}],"outputs":[]},
  {"type":"function","name":"getTourist","stateMutability":"view","inputs":[
    {"name":"touristId","type":"bytes32"}],"outputs":[
    {"name":"owner","type":"address"},
    {"name":"kycCID","type":"string"},
    {"name":"emergencyCID","type":"string"},
    {"name":"validUntil","type":"uint64"},
    {"name":"createdAt","type":"uint64"},
    {"name":"trackingOptIn","type":"bool"}]},
  {"type":"function","name":"hasRole","stateMutability":"view","inputs":[
    {"name":"role","type":"bytes32"},
    {"name":"account","type":"address"}],"outputs":[
    {"name":"","type":"bool"}]},
  {"type":"function","name":"paused","stateMutability":"view","inputs":[],"outputs":[
    {"name":"","type":"bool"}]}
]`

const (
	methodRegister    = "registerTourist"
	methodUpdate      = "updateByOwner"
	methodPushScore   = "pushScore"
	methodGetTourist  = "getTourist"
	methodHasRole     = "hasRole"
	methodPaused      = "paused"
	getTouristCreated = 4

	unknownTouristRevert = "Unknown tourist"
)

// OracleRole is the access-control role the operator needs to submit.
var OracleRole = crypto.Keccak256Hash([]byte("ORACLE_ROLE"))

// ContractReport is the result of inspecting the deployed registry.
type ContractReport struct {
	CodeSize    int
	Paused      bool
	PausedKnown bool
	AdminRole   bool
}
