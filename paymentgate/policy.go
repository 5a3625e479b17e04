package paymentgate

import (
	"context"
	"regexp"

	"zk-attestation/attestclient"
	"zk-attestation/proofstore"
	"zk-attestation/proofverifier"
	"zk-attestation/shared"

	"go.uber.org/zap"
)

// PaymentToolName is the tool whose proof confirms a payment
const PaymentToolName = "retrieve-payment-credentials"

// TrustedPaymentURLs are the only endpoints a payment proof may originate from
var TrustedPaymentURLs = []string{
	"https://dev.justpay.zeroproofai.com/tools/retrieve-payment-credentials",
	"https://staging.justpay.zeroproofai.com/tools/retrieve-payment-credentials",
	"https://justpay.zeroproofai.com/tools/retrieve-payment-credentials",
}

var acceptedStatuses = map[string]bool{
	"confirmed": true,
	"SUCCESS":   true,
	"success":   true,
}

// The claim parameters are JSON embedded in a string, matched textually.
var (
	urlPattern    = regexp.MustCompile(`"url":"([^"]+)"`)
	methodPattern = regexp.MustCompile(`"method"\s*:\s*"([^"]+)"`)
)

var parameterPaths = []string{
	"$.onchainProof.claimInfo.parameters",
	"$.proof.claimData.parameters",
}

const (
	extractedValuesPath = "$.proof.extractedParameterValues"
	statusPath          = "$.proof.extractedParameterValues.status"
)

var statusFields = []string{"proof", "extractedParameterValues", "status"}

// SessionSource lists the proofs of a session
type SessionSource interface {
	SessionProofs(ctx context.Context, sessionID string) (*attestclient.SessionProofsResponse, error)
}

// Approval describes the proof that allowed the gated action
type Approval struct {
	SessionID string `json:"session_id"`
	ProofID   string `json:"proof_id"`
	URL       string `json:"url"`
	Method    string `json:"method"`
	Status    string `json:"status,omitempty"`
	Signer    string `json:"signer"`
}

// Gate decides whether a booking may proceed for a session
type Gate struct {
	source    SessionSource
	whitelist map[string]bool
	logger    *shared.Logger
}

func NewGate(source SessionSource, logger *shared.Logger) *Gate {
	whitelist := make(map[string]bool, len(TrustedPaymentURLs))
	for _, u := range TrustedPaymentURLs {
		whitelist[u] = true
	}
	return &Gate{source: source, whitelist: whitelist, logger: logger}
}

// VerifyPaymentProof runs every policy step; any failure blocks the action.
func (g *Gate) VerifyPaymentProof(ctx context.Context, sessionID string) (*Approval, error) {
	logger := g.logger.WithSession(sessionID)

	resp, err := g.source.SessionProofs(ctx, sessionID)
	if err != nil {
		logger.Error("Failed to fetch session proofs", zap.Error(err))
		return nil, err
	}
	if len(resp.Proofs) == 0 {
		return nil, shared.NewNotFoundError("payment_gate", "no proofs found for session %s", sessionID)
	}

	payment := findTool(resp.Proofs, PaymentToolName)
	if payment == nil {
		return nil, shared.NewNotFoundError("payment_gate", "no %s proof in session %s", PaymentToolName, sessionID)
	}
	logger = logger.With(zap.String("proof_id", payment.ProofID))

	url, method, err := ExtractOrigin(payment.Proof)
	if err != nil {
		return nil, err
	}
	if err := g.CheckProofOrigin(url, method); err != nil {
		g.logger.Security("Payment proof origin rejected",
			zap.String("session_id", sessionID), zap.String("url", url), zap.String("method", method))
		return nil, err
	}

	status, err := CheckStatus(payment.Proof)
	if err != nil {
		g.logger.Security("Payment status rejected", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	result, err := proofverifier.VerifySDK(payment.Proof)
	if err != nil {
		g.logger.Security("Payment proof signature rejected", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	logger.Info("Payment proof accepted",
		zap.String("url", url),
		zap.String("status", status),
		zap.String("signer", result.Signer))

	return &Approval{
		SessionID: sessionID,
		ProofID:   payment.ProofID,
		URL:       url,
		Method:    method,
		Status:    status,
		Signer:    result.Signer,
	}, nil
}

func findTool(proofs []proofstore.StoredProof, toolName string) *proofstore.StoredProof {
	for i := range proofs {
		if proofs[i].ToolName == toolName {
			return &proofs[i]
		}
	}
	return nil
}

// ExtractOrigin pulls the attested request url and method out of the
// claim parameters of a stored proof.
func ExtractOrigin(proof []byte) (url, method string, err error) {
	var params string
	for _, path := range parameterPaths {
		if s, ok := lookupString(proof, path); ok {
			params = s
			break
		}
	}
	if params == "" {
		return "", "", shared.NewInputError("payment_gate", "claim parameters not found in proof")
	}

	m := urlPattern.FindStringSubmatch(params)
	if m == nil {
		return "", "", shared.NewInputError("payment_gate", "url not found in claim parameters")
	}
	url = m[1]

	m = methodPattern.FindStringSubmatch(params)
	if m == nil {
		return "", "", shared.NewInputError("payment_gate", "method not found in claim parameters")
	}
	method = m[1]

	return url, method, nil
}

// CheckProofOrigin requires a whitelisted url and a POST request
func (g *Gate) CheckProofOrigin(url, method string) error {
	if !g.whitelist[url] {
		return shared.NewPolicyError("payment_gate", "payment proof url %q is not a trusted payment endpoint", url)
	}
	if method != "POST" {
		return shared.NewPolicyError("payment_gate", "payment proof method %q, expected POST", method)
	}
	return nil
}

// CheckStatus requires extractedParameterValues. A non-null status must be
// one of the accepted strings; without one the captured call is taken as
// sufficient.
func CheckStatus(proof []byte) (string, error) {
	if !exists(proof, extractedValuesPath) {
		return "", shared.NewPolicyError("payment_gate", "payment proof has no extractedParameterValues")
	}
	if !exists(proof, statusPath) {
		return "", nil
	}

	status, ok := lookupString(proof, statusPath)
	if ok && acceptedStatuses[status] {
		return status, nil
	}
	if span, found := locateField(proof, statusFields...); found {
		return status, shared.NewPolicyError("payment_gate",
			"payment status %s at bytes %d-%d is not confirmed", span.Raw, span.Start, span.End)
	}
	return status, shared.NewPolicyError("payment_gate", "payment status is not confirmed")
}
