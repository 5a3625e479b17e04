package proofverifier

import (
	"fmt"
	"strings"
	"sync"

	"zk-attestation/shared"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// reclaimABI is the verifyProof fragment of the Reclaim verifier contract
const reclaimABI = `[{
	"type": "function",
	"name": "verifyProof",
	"stateMutability": "view",
	"inputs": [{
		"name": "proof",
		"type": "tuple",
		"internalType": "struct Reclaim.Proof",
		"components": [
			{"name": "claimInfo", "type": "tuple", "internalType": "struct Claims.ClaimInfo", "components": [
				{"name": "provider", "type": "string"},
				{"name": "parameters", "type": "string"},
				{"name": "context", "type": "string"}
			]},
			{"name": "signedClaim", "type": "tuple", "internalType": "struct Claims.SignedClaim", "components": [
				{"name": "claim", "type": "tuple", "internalType": "struct Claims.CompleteClaimData", "components": [
					{"name": "identifier", "type": "bytes32"},
					{"name": "owner", "type": "address"},
					{"name": "timestampS", "type": "uint32"},
					{"name": "epoch", "type": "uint32"}
				]},
				{"name": "signatures", "type": "bytes[]"}
			]}
		]
	}],
	"outputs": [{"name": "", "type": "bool"}]
}]`

// Mirror structs for the abi packer, matched by camel-cased component name
type abiClaimInfo struct {
	Provider   string
	Parameters string
	Context    string
}

type abiCompleteClaimData struct {
	Identifier [32]byte
	Owner      common.Address
	TimestampS uint32
	Epoch      uint32
}

type abiSignedClaim struct {
	Claim      abiCompleteClaimData
	Signatures [][]byte
}

type abiProof struct {
	ClaimInfo   abiClaimInfo
	SignedClaim abiSignedClaim
}

var (
	abiOnce     sync.Once
	parsedABI   abi.ABI
	abiParseErr error
)

func verifyProofMethod() (abi.Method, error) {
	abiOnce.Do(func() {
		parsedABI, abiParseErr = abi.JSON(strings.NewReader(reclaimABI))
		if abiParseErr != nil {
			return
		}
		if sig := parsedABI.Methods["verifyProof"].Sig; sig != VerifyProofSignature {
			abiParseErr = fmt.Errorf("verifyProof signature drifted: %s", sig)
		}
	})
	if abiParseErr != nil {
		return abi.Method{}, abiParseErr
	}
	return parsedABI.Methods["verifyProof"], nil
}

// VerifyProofSelector returns the 4-byte function selector
func VerifyProofSelector() []byte {
	return crypto.Keccak256([]byte(VerifyProofSignature))[:4]
}

// EncodeVerifyProofCalldata ABI-encodes proof as the single tuple argument
// of verifyProof and prepends the selector.
func EncodeVerifyProofCalldata(proof *Proof) ([]byte, error) {
	if proof == nil {
		return nil, shared.NewInputError("encode_calldata", "proof is nil")
	}
	if len(proof.SignedClaim.Signatures) == 0 {
		return nil, shared.NewInputError("encode_calldata", "signature list is empty")
	}

	method, err := verifyProofMethod()
	if err != nil {
		return nil, shared.NewInfraError("encode_calldata", "failed to load verifier ABI", err)
	}

	arg := abiProof{
		ClaimInfo: abiClaimInfo{
			Provider:   proof.ClaimInfo.Provider,
			Parameters: proof.ClaimInfo.Parameters,
			Context:    proof.ClaimInfo.Context,
		},
		SignedClaim: abiSignedClaim{
			Claim: abiCompleteClaimData{
				Identifier: proof.SignedClaim.Claim.Identifier,
				Owner:      proof.SignedClaim.Claim.Owner,
				TimestampS: proof.SignedClaim.Claim.TimestampS,
				Epoch:      proof.SignedClaim.Claim.Epoch,
			},
			Signatures: proof.SignedClaim.Signatures,
		},
	}

	encoded, err := method.Inputs.Pack(arg)
	if err != nil {
		return nil, shared.NewInputError("encode_calldata", "abi encoding failed: %v", err)
	}

	calldata := make([]byte, 0, 4+len(encoded))
	calldata = append(calldata, VerifyProofSelector()...)
	return append(calldata, encoded...), nil
}
