package proofstore

import "encoding/json"

// RedactionMetadata summarizes what was hidden from a tool response
type RedactionMetadata struct {
	RedactedFieldCount int      `json:"redacted_field_count"`
	RedactedPaths      []string `json:"redacted_paths"`
	WasRedacted        bool     `json:"was_redacted"`
}

// StoredProof is an immutable ledger entry
type StoredProof struct {
	ProofID           string             `json:"proof_id"`
	SessionID         string             `json:"session_id"`
	ToolName          string             `json:"tool_name"`
	Timestamp         uint64             `json:"timestamp"`
	Request           json.RawMessage    `json:"request"`
	Response          json.RawMessage    `json:"response"`
	Proof             json.RawMessage    `json:"proof"`
	Verified          bool               `json:"verified"`
	OnchainCompatible bool               `json:"onchain_compatible"`
	SubmittedBy       *string            `json:"submitted_by"`
	Sequence          *uint32            `json:"sequence,omitempty"`
	RelatedProofID    *string            `json:"related_proof_id,omitempty"`
	WorkflowStage     *string            `json:"workflow_stage,omitempty"`
	DisplayResponse   json.RawMessage    `json:"display_response,omitempty"`
	RedactionMetadata *RedactionMetadata `json:"redaction_metadata,omitempty"`
}

// Submission is the body of POST /proofs/submit. Timestamp is accepted
// for compatibility and replaced by the server clock.
type Submission struct {
	SessionID         string          `json:"session_id"`
	ToolName          string          `json:"tool_name"`
	Timestamp         uint64          `json:"timestamp"`
	Request           json.RawMessage `json:"request"`
	Response          json.RawMessage `json:"response"`
	Proof             json.RawMessage `json:"proof"`
	Verified          bool            `json:"verified"`
	OnchainCompatible bool            `json:"onchain_compatible"`
	SubmittedBy       *string         `json:"submitted_by,omitempty"`
	Sequence          *uint32         `json:"sequence,omitempty"`
	RelatedProofID    *string         `json:"related_proof_id,omitempty"`
	WorkflowStage     *string         `json:"workflow_stage,omitempty"`
	DisplayResponse   json.RawMessage `json:"display_response,omitempty"`
	RedactionMetadata json.RawMessage `json:"redaction_metadata,omitempty"`
}
