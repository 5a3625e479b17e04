package proofverifier

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ComputeClaimIdentifier is keccak256(provider || parameters || context).
// Verification trusts the witness-supplied identifier; this value is only
// reported alongside results.
func ComputeClaimIdentifier(info ClaimInfo) common.Hash {
	return crypto.Keccak256Hash(
		[]byte(info.Provider),
		[]byte(info.Parameters),
		[]byte(info.Context),
	)
}
