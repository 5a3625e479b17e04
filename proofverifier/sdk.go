package proofverifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"zk-attestation/shared"

	"github.com/ethereum/go-ethereum/common"
)

// ClaimMessage is the text a witness signs over a claim
func ClaimMessage(identifier, owner string, timestampS, epoch uint64) string {
	return fmt.Sprintf("%s\n%s\n%d\n%d",
		strings.ToLower(identifier), strings.ToLower(owner), timestampS, epoch)
}

// VerifySDK recovers the signer of the first signature and checks it
// against the first witness. raw is the SDK proof, either bare or
// wrapped as {"proof": {...}}.
func VerifySDK(raw []byte) (*VerificationResult, error) {
	p, err := parseSDKProof(raw)
	if err != nil {
		return nil, err
	}

	cd := p.ClaimData
	switch {
	case cd.Identifier == "":
		return nil, shared.NewInputError("verify_sdk", "missing claimData.identifier")
	case cd.Owner == "":
		return nil, shared.NewInputError("verify_sdk", "missing claimData.owner")
	case cd.TimestampS == nil:
		return nil, shared.NewInputError("verify_sdk", "missing claimData.timestampS")
	case cd.Epoch == nil:
		return nil, shared.NewInputError("verify_sdk", "missing claimData.epoch")
	}
	if len(p.Signatures) == 0 {
		return nil, shared.NewInputError("verify_sdk", "signature list is empty")
	}
	if len(p.Witnesses) == 0 {
		return nil, shared.NewInputError("verify_sdk", "witness list is empty")
	}

	sig, err := decodeHex(p.Signatures[0])
	if err != nil {
		return nil, shared.NewInputError("verify_sdk", "invalid signature hex: %v", err)
	}
	if len(sig) != shared.SignatureLength {
		return nil, shared.NewInputError("verify_sdk", "signature must be %d bytes, got %d", shared.SignatureLength, len(sig))
	}
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return nil, shared.NewInputError("verify_sdk", "invalid recovery id %d", sig[64])
	}

	message := ClaimMessage(cd.Identifier, cd.Owner, *cd.TimestampS, *cd.Epoch)
	signer, err := shared.RecoverEthAddress([]byte(message), sig)
	if err != nil {
		return nil, shared.NewInputError("verify_sdk", "signature recovery failed: %v", err)
	}

	witness := p.Witnesses[0].ID
	if !strings.EqualFold(signer.Hex(), witness) {
		return nil, shared.NewPolicyError("verify_sdk", "recovered signer %s does not match witness %s", signer.Hex(), witness)
	}

	result := &VerificationResult{
		Strategy:        OffchainSDK,
		Identifier:      cd.Identifier,
		Owner:           cd.Owner,
		TimestampS:      uint32(*cd.TimestampS),
		Epoch:           uint32(*cd.Epoch),
		SignaturesCount: len(p.Signatures),
		Signer:          signer.Hex(),
	}
	if claimed, err := decodeHex(cd.Identifier); err == nil && len(claimed) == common.HashLength {
		computed := ComputeClaimIdentifier(ClaimInfo{Provider: cd.Provider, Parameters: cd.Parameters, Context: cd.Context})
		match := computed == common.BytesToHash(claimed)
		result.IdentifierMatchesClaim = &match
	}
	return result, nil
}

func parseSDKProof(raw []byte) (*sdkProof, error) {
	var outer struct {
		Proof json.RawMessage `json:"proof"`
	}
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, shared.NewInputError("verify_sdk", "proof is not a JSON object: %v", err)
	}
	if present(outer.Proof) {
		raw = outer.Proof
	}

	var p sdkProof
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, shared.NewInputError("verify_sdk", "malformed SDK proof: %v", err)
	}
	if p.ClaimData == nil {
		return nil, shared.NewInputError("verify_sdk", "missing claimData")
	}
	return &p, nil
}
