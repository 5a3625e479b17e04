package attester

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"zk-attestation/attestclient"
	"zk-attestation/proofstore"
	"zk-attestation/proofverifier"
	"zk-attestation/shared"
	"zk-attestation/zkvm"

	"go.uber.org/zap"
)

// JSON bodies are small; the ELF upload has its own limit.
const maxJSONBody = 8 << 20

// multipart framing allowance on top of the ELF limit
const multipartOverhead = 64 << 10

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"programs": s.registry.Len(),
		"keys":     s.keys.Len(),
	})
}

func (s *Service) handleRegisterELF(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxELFBytes+multipartOverhead)

	file, header, err := r.FormFile("elf")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, r, tooLarge("register_elf", maxErr))
			return
		}
		s.writeError(w, r, shared.NewInputError("register_elf", "missing multipart field \"elf\": %v", err))
		return
	}
	defer file.Close()

	if header.Size > s.config.MaxELFBytes {
		s.writeError(w, r, tooLarge("register_elf", &http.MaxBytesError{Limit: s.config.MaxELFBytes}))
		return
	}

	elf, err := io.ReadAll(io.LimitReader(file, s.config.MaxELFBytes+1))
	if err != nil {
		s.writeError(w, r, shared.NewInputError("register_elf", "failed to read ELF upload: %v", err))
		return
	}
	if int64(len(elf)) > s.config.MaxELFBytes {
		s.writeError(w, r, tooLarge("register_elf", &http.MaxBytesError{Limit: s.config.MaxELFBytes}))
		return
	}

	program, err := s.registry.Register(elf)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.WithProgram(program.ID).Info("Registered guest program",
		zap.Int("elf_bytes", len(elf)),
		zap.String("elf_digest", fmt.Sprintf("0x%x", program.Digest)))

	writeJSON(w, http.StatusOK, attestclient.RegisterResponse{
		ProgramID:    program.ID,
		RegisteredAt: program.RegisteredAt.Format(time.RFC3339),
	})
}

func (s *Service) handleAttest(w http.ResponseWriter, r *http.Request) {
	var req attestclient.AttestRequest
	if err := s.decodeBody(w, r, schemaAttest, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.prover.Prove(r.Context(), zkvm.ProveRequest{
		ProgramID:     req.ProgramID,
		Input:         req.InputBytes,
		ClaimedOutput: req.ClaimedOutput,
		VerifyLocally: req.VerifyLocally,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, attestclient.AttestResponse{
		Proof:          hex.EncodeToString(result.Proof),
		PublicValues:   hex.EncodeToString(result.PublicValues),
		VKHash:         result.VKHash.Hex(),
		VerifiedOutput: result.VerifiedOutput,
	})
}

func (s *Service) handleVerifyAttestation(w http.ResponseWriter, r *http.Request) {
	var req attestclient.VerifyAttestationRequest
	if err := s.decodeBody(w, r, schemaVerifyAttestation, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	proof, err := decodeHexField("proof", req.Proof)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	publicValues, err := decodeHexField("public_values", req.PublicValues)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.prover.VerifyProof(r.Context(), req.ProgramID, proof, publicValues); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attestclient.VerifyAttestationResponse{Success: true})
}

func (s *Service) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	var sub proofstore.Submission
	if err := s.decodeBody(w, r, schemaSubmitProof, &sub); err != nil {
		s.writeError(w, r, err)
		return
	}

	record, err := s.store.Submit(sub)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attestclient.SubmitResponse{Success: true, ProofID: record.ProofID})
}

func (s *Service) handleGetProof(w http.ResponseWriter, r *http.Request) {
	proof, err := s.store.GetByID(r.PathValue("proof_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeProof(w, proof)
}

// handleProofAction serves /proofs/{proof_id}/{action}; only "verify" exists.
func (s *Service) handleProofAction(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("action") != "verify" {
		s.writeError(w, r, shared.NewNotFoundError("route", "no route for %s", r.URL.Path))
		return
	}

	proof, err := s.store.GetByID(r.PathValue("proof_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := proofstore.CheckFresh(proof, s.now(), s.config.FreshnessWindow); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeProof(w, proof)
}

func (s *Service) writeProof(w http.ResponseWriter, proof *proofstore.StoredProof) {
	writeJSON(w, http.StatusOK, attestclient.ProofResponse{
		Success: true,
		Data: &attestclient.ProofData{
			Proof: *proof,
			VerificationInfo: attestclient.VerificationInfo{
				Protocol:           ProtocolName,
				Issuer:             IssuerName,
				TimestampVerified:  true,
				SignatureAlgorithm: SignatureAlgorithm,
				CanVerifyOnchain:   true,
			},
		},
	})
}

func (s *Service) handleSessionProofs(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	proofs := s.store.GetBySession(sessionID)

	writeJSON(w, http.StatusOK, attestclient.SessionProofsResponse{
		Success:   true,
		SessionID: sessionID,
		Count:     len(proofs),
		Proofs:    proofs,
		VerificationMetadata: attestclient.VerificationMetadata{
			Protocol:            ProtocolName,
			Issuer:              IssuerName,
			VerificationService: VerificationService,
		},
	})
}

func (s *Service) handleCount(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	writeJSON(w, http.StatusOK, attestclient.CountResponse{
		Success:   true,
		SessionID: sessionID,
		Count:     s.store.Count(sessionID),
	})
}

func (s *Service) handleVerifyClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Strategy string          `json:"strategy"`
		Proof    json.RawMessage `json:"proof"`
	}
	if err := s.decodeBody(w, r, schemaVerifyClaim, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	strategy, err := proofverifier.ParseStrategy(req.Strategy)
	if err != nil {
		s.writeError(w, r, shared.NewInputError("verify_claim", "%v", err))
		return
	}

	result, err := s.verifier.Verify(r.Context(), strategy, req.Proof)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attestclient.VerifyClaimResponse{
		Success:  true,
		Strategy: strategy.String(),
		Result:   result,
	})
}

// decodeBody reads, schema-checks and unmarshals a JSON request body
func (s *Service) decodeBody(w http.ResponseWriter, r *http.Request, schema string, out interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return tooLarge(schema, maxErr)
		}
		return shared.NewInputError(schema, "failed to read request body: %v", err)
	}
	if err := validateRequest(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return shared.NewInputError(schema, "invalid request body: %v", err)
	}
	return nil
}

// tooLarge keeps the MaxBytesError in the chain so it maps to 413
func tooLarge(op string, err *http.MaxBytesError) error {
	return shared.NewInputError(op, "request body exceeds %d bytes", err.Limit).WithCause(err)
}

func decodeHexField(field, value string) ([]byte, error) {
	value = strings.TrimPrefix(strings.TrimPrefix(value, "0x"), "0X")
	decoded, err := hex.DecodeString(value)
	if err != nil {
		return nil, shared.NewInputError("verify_attestation", "%s is not valid hex: %v", field, err)
	}
	return decoded, nil
}
