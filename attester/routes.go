package attester

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Routes builds the HTTP mux. /proofs/{proof_id}/verify is served by the
// generic action route so it does not overlap /proofs/session/{id}.
func (s *Service) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /register-elf", s.handleRegisterELF)
	mux.HandleFunc("POST /attest", s.handleAttest)
	mux.HandleFunc("POST /attest/verify", s.handleVerifyAttestation)

	mux.HandleFunc("POST /proofs/submit", s.handleSubmitProof)
	mux.HandleFunc("GET /proofs/session/{session_id}", s.handleSessionProofs)
	mux.HandleFunc("GET /proofs/count/{session_id}", s.handleCount)
	mux.HandleFunc("GET /proofs/watch/{session_id}", s.handleWatchSession)
	mux.HandleFunc("GET /proofs/{proof_id}", s.handleGetProof)
	mux.HandleFunc("GET /proofs/{proof_id}/{action}", s.handleProofAction)

	mux.HandleFunc("POST /verify-claim", s.handleVerifyClaim)
	return mux
}

// Handler is Routes wrapped with OpenTelemetry server instrumentation
func (s *Service) Handler() http.Handler {
	return otelhttp.NewHandler(s.Routes(), "zk-attestation")
}
