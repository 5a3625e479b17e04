package proofverifier

import (
	"bytes"
	"encoding/json"
	"strings"

	"zk-attestation/shared"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ClaimInfo describes what was attested. Parameters and Context are JSON
// documents carried as opaque strings.
type ClaimInfo struct {
	Provider   string `json:"provider"`
	Parameters string `json:"parameters"`
	Context    string `json:"context"`
}

// CompleteClaimData is the witness-signed part of a claim
type CompleteClaimData struct {
	Identifier common.Hash
	Owner      common.Address
	TimestampS uint32
	Epoch      uint32
}

// SignedClaim carries the claim and its witness signatures
type SignedClaim struct {
	Claim      CompleteClaimData
	Signatures [][]byte
}

// Proof is the unit accepted by the on-chain verifier
type Proof struct {
	ClaimInfo   ClaimInfo
	SignedClaim SignedClaim
}

// Witness is an attestor entry of the SDK proof form
type Witness struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

type wireClaim struct {
	Identifier string  `json:"identifier"`
	Owner      string  `json:"owner"`
	TimestampS *uint64 `json:"timestampS"`
	Epoch      *uint64 `json:"epoch"`
}

type wireSignedClaim struct {
	Claim      *wireClaim `json:"claim"`
	Signatures []string   `json:"signatures"`
}

type wireOnchainProof struct {
	ClaimInfo   *ClaimInfo       `json:"claimInfo"`
	SignedClaim *wireSignedClaim `json:"signedClaim"`
}

// sdkClaimData is claimData as emitted by the Reclaim SDK
type sdkClaimData struct {
	Provider   string  `json:"provider"`
	Parameters string  `json:"parameters"`
	Context    string  `json:"context"`
	Identifier string  `json:"identifier"`
	Owner      string  `json:"owner"`
	TimestampS *uint64 `json:"timestampS"`
	Epoch      *uint64 `json:"epoch"`
}

type sdkProof struct {
	Identifier               string          `json:"identifier"`
	ClaimData                *sdkClaimData   `json:"claimData"`
	Signatures               []string        `json:"signatures"`
	Witnesses                []Witness       `json:"witnesses"`
	ExtractedParameterValues json.RawMessage `json:"extractedParameterValues,omitempty"`
}

type proofEnvelope struct {
	OnchainProof json.RawMessage `json:"onchainProof"`
	ClaimInfo    json.RawMessage `json:"claimInfo"`
	ClaimData    json.RawMessage `json:"claimData"`
	Proof        json.RawMessage `json:"proof"`
}

// ParseProof accepts {onchainProof: Proof}, a flat Proof, or the raw SDK
// form (optionally nested under "proof") and returns the on-chain shape.
func ParseProof(raw []byte) (*Proof, error) {
	var env proofEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, shared.NewInputError("parse_proof", "proof is not a JSON object: %v", err)
	}

	switch {
	case present(env.OnchainProof):
		return parseOnchainProof(env.OnchainProof)
	case present(env.ClaimInfo):
		return parseOnchainProof(raw)
	case present(env.ClaimData):
		return parseSDKAsOnchain(raw)
	case present(env.Proof):
		return ParseProof(env.Proof)
	}
	return nil, shared.NewInputError("parse_proof", "missing onchainProof, claimInfo or claimData")
}

func parseOnchainProof(raw []byte) (*Proof, error) {
	var w wireOnchainProof
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, shared.NewInputError("parse_proof", "malformed onchain proof: %v", err)
	}
	if w.ClaimInfo == nil {
		return nil, shared.NewInputError("parse_proof", "missing claimInfo")
	}
	if w.SignedClaim == nil {
		return nil, shared.NewInputError("parse_proof", "missing signedClaim")
	}
	if w.SignedClaim.Claim == nil {
		return nil, shared.NewInputError("parse_proof", "missing signedClaim.claim")
	}

	claim, err := buildClaim(w.SignedClaim.Claim.Identifier, w.SignedClaim.Claim.Owner,
		w.SignedClaim.Claim.TimestampS, w.SignedClaim.Claim.Epoch)
	if err != nil {
		return nil, err
	}
	sigs, err := decodeSignatures(w.SignedClaim.Signatures)
	if err != nil {
		return nil, err
	}

	return &Proof{
		ClaimInfo:   *w.ClaimInfo,
		SignedClaim: SignedClaim{Claim: *claim, Signatures: sigs},
	}, nil
}

func parseSDKAsOnchain(raw []byte) (*Proof, error) {
	var p sdkProof
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, shared.NewInputError("parse_proof", "malformed SDK proof: %v", err)
	}
	if p.ClaimData == nil {
		return nil, shared.NewInputError("parse_proof", "missing claimData")
	}

	identifier := p.ClaimData.Identifier
	if identifier == "" {
		identifier = p.Identifier
	}
	claim, err := buildClaim(identifier, p.ClaimData.Owner, p.ClaimData.TimestampS, p.ClaimData.Epoch)
	if err != nil {
		return nil, err
	}
	sigs, err := decodeSignatures(p.Signatures)
	if err != nil {
		return nil, err
	}

	return &Proof{
		ClaimInfo: ClaimInfo{
			Provider:   p.ClaimData.Provider,
			Parameters: p.ClaimData.Parameters,
			Context:    p.ClaimData.Context,
		},
		SignedClaim: SignedClaim{Claim: *claim, Signatures: sigs},
	}, nil
}

func buildClaim(identifier, owner string, timestampS, epoch *uint64) (*CompleteClaimData, error) {
	if identifier == "" {
		return nil, shared.NewInputError("parse_proof", "missing identifier")
	}
	if owner == "" {
		return nil, shared.NewInputError("parse_proof", "missing owner")
	}
	if timestampS == nil {
		return nil, shared.NewInputError("parse_proof", "missing timestampS")
	}
	if epoch == nil {
		return nil, shared.NewInputError("parse_proof", "missing epoch")
	}
	if *timestampS > 0xFFFFFFFF || *epoch > 0xFFFFFFFF {
		return nil, shared.NewInputError("parse_proof", "timestampS and epoch must fit in uint32")
	}

	idBytes, err := decodeHex(identifier)
	if err != nil {
		return nil, shared.NewInputError("parse_proof", "invalid identifier hex: %v", err)
	}
	if len(idBytes) != common.HashLength {
		return nil, shared.NewInputError("parse_proof", "identifier must be %d bytes, got %d", common.HashLength, len(idBytes))
	}
	if !common.IsHexAddress(owner) {
		return nil, shared.NewInputError("parse_proof", "invalid owner address %q", owner)
	}

	return &CompleteClaimData{
		Identifier: common.BytesToHash(idBytes),
		Owner:      common.HexToAddress(owner),
		TimestampS: uint32(*timestampS),
		Epoch:      uint32(*epoch),
	}, nil
}

func decodeSignatures(sigs []string) ([][]byte, error) {
	if len(sigs) == 0 {
		return nil, shared.NewInputError("parse_proof", "signature list is empty")
	}
	out := make([][]byte, 0, len(sigs))
	for i, s := range sigs {
		b, err := decodeHex(s)
		if err != nil {
			return nil, shared.NewInputError("parse_proof", "invalid signature hex at index %d: %v", i, err)
		}
		out = append(out, b)
	}
	return out, nil
}

// decodeHex accepts hex with or without the 0x prefix
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// MarshalJSON renders the proof in the on-chain JSON shape
func (p *Proof) MarshalJSON() ([]byte, error) {
	sigs := make([]string, len(p.SignedClaim.Signatures))
	for i, s := range p.SignedClaim.Signatures {
		sigs[i] = hexutil.Encode(s)
	}
	ts := uint64(p.SignedClaim.Claim.TimestampS)
	epoch := uint64(p.SignedClaim.Claim.Epoch)
	return json.Marshal(wireOnchainProof{
		ClaimInfo: &p.ClaimInfo,
		SignedClaim: &wireSignedClaim{
			Claim: &wireClaim{
				Identifier: p.SignedClaim.Claim.Identifier.Hex(),
				Owner:      p.SignedClaim.Claim.Owner.Hex(),
				TimestampS: &ts,
				Epoch:      &epoch,
			},
			Signatures: sigs,
		},
	})
}
