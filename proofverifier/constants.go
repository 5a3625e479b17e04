package proofverifier

import "math/big"

// VerifyProofSignature is the canonical signature of the deployed Reclaim
// verifier's entry point. The selector is derived from it.
const VerifyProofSignature = "verifyProof(((string,string,string),((bytes32,address,uint32,uint32),bytes[])))"

// Defaults for the on-chain strategies
const (
	DefaultRPCURL          = "https://sepolia.sepolia.io"
	DefaultContractAddress = "0xAe94FB09711e1c6B057853a515483792d8e474d0"
)

// MinTransactionBalanceWei is the gas reserve required before submitting
// a verification transaction (0.01 ETH).
var MinTransactionBalanceWei = big.NewInt(10_000_000_000_000_000)
