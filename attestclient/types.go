package attestclient

import (
	"encoding/json"
	"fmt"
	"strings"

	"zk-attestation/proofstore"
	"zk-attestation/proofverifier"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ByteList marshals as a JSON array of numbers, e.g. [1,2,3]. Hex strings
// are also accepted on input.
type ByteList []byte

func (b ByteList) MarshalJSON() ([]byte, error) {
	nums := make([]int, len(b))
	for i, v := range b {
		nums[i] = int(v)
	}
	return json.Marshal(nums)
}

func (b *ByteList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if !strings.HasPrefix(s, "0x") {
			s = "0x" + s
		}
		decoded, err := hexutil.Decode(s)
		if err != nil {
			return fmt.Errorf("invalid hex bytes: %w", err)
		}
		*b = decoded
		return nil
	}

	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return err
	}
	out := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return fmt.Errorf("byte value %d at index %d out of range", n, i)
		}
		out[i] = byte(n)
	}
	*b = out
	return nil
}

type RegisterResponse struct {
	ProgramID    string `json:"program_id"`
	RegisteredAt string `json:"registered_at"`
}

type AttestRequest struct {
	ProgramID     string          `json:"program_id"`
	InputBytes    ByteList        `json:"input_bytes"`
	ClaimedOutput json.RawMessage `json:"claimed_output,omitempty"`
	VerifyLocally bool            `json:"verify_locally"`
}

// AttestResponse carries hex-encoded proof and public values
type AttestResponse struct {
	Proof          string          `json:"proof"`
	PublicValues   string          `json:"public_values"`
	VKHash         string          `json:"vk_hash"`
	VerifiedOutput json.RawMessage `json:"verified_output"`
}

type VerifyAttestationRequest struct {
	ProgramID    string `json:"program_id"`
	Proof        string `json:"proof"`
	PublicValues string `json:"public_values"`
}

type VerifyAttestationResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type SubmitResponse struct {
	Success bool   `json:"success"`
	ProofID string `json:"proof_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type VerificationInfo struct {
	Protocol           string `json:"protocol"`
	Issuer             string `json:"issuer"`
	TimestampVerified  bool   `json:"timestamp_verified"`
	SignatureAlgorithm string `json:"signature_algorithm"`
	CanVerifyOnchain   bool   `json:"can_verify_onchain"`
}

type ProofData struct {
	Proof            proofstore.StoredProof `json:"proof"`
	VerificationInfo VerificationInfo       `json:"verification_info"`
}

type ProofResponse struct {
	Success bool       `json:"success"`
	Data    *ProofData `json:"data,omitempty"`
	Error   string     `json:"error,omitempty"`
}

type VerificationMetadata struct {
	Protocol            string `json:"protocol"`
	Issuer              string `json:"issuer"`
	VerificationService string `json:"verification_service"`
}

type SessionProofsResponse struct {
	Success              bool                     `json:"success"`
	SessionID            string                   `json:"session_id"`
	Count                int                      `json:"count"`
	Proofs               []proofstore.StoredProof `json:"proofs"`
	VerificationMetadata VerificationMetadata     `json:"verification_metadata"`
}

type CountResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	Count     int    `json:"count"`
}

type VerifyClaimRequest struct {
	Strategy proofverifier.Strategy `json:"strategy"`
	Proof    json.RawMessage        `json:"proof"`
}

type VerifyClaimResponse struct {
	Success  bool                              `json:"success"`
	Strategy string                            `json:"strategy"`
	Result   *proofverifier.VerificationResult `json:"result,omitempty"`
	Error    string                            `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	TxHash  string `json:"tx_hash,omitempty"`
}
