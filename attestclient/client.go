package attestclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"zk-attestation/proofstore"
	"zk-attestation/proofverifier"
	"zk-attestation/shared"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Client talks to the attestation service over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// RegisterELF uploads a guest program as the multipart field "elf"
func (c *Client) RegisterELF(ctx context.Context, elf []byte) (*RegisterResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("elf", "program.elf")
	if err != nil {
		return nil, shared.NewInfraError("register_elf", "failed to build multipart body", err)
	}
	if _, err := part.Write(elf); err != nil {
		return nil, shared.NewInfraError("register_elf", "failed to build multipart body", err)
	}
	if err := mw.Close(); err != nil {
		return nil, shared.NewInfraError("register_elf", "failed to build multipart body", err)
	}

	var out RegisterResponse
	if err := c.do(ctx, http.MethodPost, "/register-elf", mw.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Attest(ctx context.Context, req AttestRequest) (*AttestResponse, error) {
	var out AttestResponse
	if err := c.doJSON(ctx, http.MethodPost, "/attest", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VerifyAttestation(ctx context.Context, req VerifyAttestationRequest) error {
	var out VerifyAttestationResponse
	return c.doJSON(ctx, http.MethodPost, "/attest/verify", req, &out)
}

// SubmitProof stores a proof and returns the server-assigned id
func (c *Client) SubmitProof(ctx context.Context, sub proofstore.Submission) (string, error) {
	var out SubmitResponse
	if err := c.doJSON(ctx, http.MethodPost, "/proofs/submit", sub, &out); err != nil {
		return "", err
	}
	return out.ProofID, nil
}

func (c *Client) GetProof(ctx context.Context, proofID string) (*ProofData, error) {
	return c.getProofData(ctx, "/proofs/"+url.PathEscape(proofID))
}

// VerifyProof fetches a proof through the freshness-enforcing endpoint
func (c *Client) VerifyProof(ctx context.Context, proofID string) (*ProofData, error) {
	return c.getProofData(ctx, "/proofs/"+url.PathEscape(proofID)+"/verify")
}

func (c *Client) getProofData(ctx context.Context, path string) (*ProofData, error) {
	var out ProofResponse
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, shared.NewInfraError("get_proof", "response from "+c.baseURL+path+" has no data", nil)
	}
	return out.Data, nil
}

func (c *Client) SessionProofs(ctx context.Context, sessionID string) (*SessionProofsResponse, error) {
	var out SessionProofsResponse
	if err := c.do(ctx, http.MethodGet, "/proofs/session/"+url.PathEscape(sessionID), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Count(ctx context.Context, sessionID string) (int, error) {
	var out CountResponse
	if err := c.do(ctx, http.MethodGet, "/proofs/count/"+url.PathEscape(sessionID), "", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) VerifyClaim(ctx context.Context, strategy proofverifier.Strategy, proof json.RawMessage) (*proofverifier.VerificationResult, error) {
	var out VerifyClaimResponse
	if err := c.doJSON(ctx, http.MethodPost, "/verify-claim", VerifyClaimRequest{Strategy: strategy, Proof: proof}, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return shared.NewInputError(path, "failed to encode request: %v", err)
	}
	return c.do(ctx, method, path, "application/json", bytes.NewReader(payload), out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) error {
	target := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return shared.NewInputError(path, "invalid request for %s: %v", target, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shared.NewInfraError(path, "HTTP call to "+target+" failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return shared.NewInfraError(path, "failed to read response from "+target, err)
	}

	c.logger.Debug("Attestation service call",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(path, target, resp.StatusCode, raw)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return shared.NewInfraError(path, "invalid JSON from "+target, err)
	}
	return nil
}

func decodeError(op, target string, status int, raw []byte) error {
	var body ErrorResponse
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		msg = body.Error
	}

	e := &shared.AttestError{Kind: kindForStatus(status), Op: op, Message: msg, TxHash: body.TxHash}
	if e.Kind == shared.KindInfra {
		e.Cause = fmt.Errorf("%s returned HTTP %d", target, status)
	}
	return e
}

func kindForStatus(status int) shared.ErrorKind {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return shared.KindInput
	case http.StatusNotFound:
		return shared.KindNotFound
	case http.StatusUnprocessableEntity:
		return shared.KindPolicy
	default:
		return shared.KindInfra
	}
}
