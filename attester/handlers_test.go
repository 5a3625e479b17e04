package attester

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"zk-attestation/attestclient"
	"zk-attestation/proofstore"
	"zk-attestation/proofverifier"
	"zk-attestation/shared"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testServer struct {
	service *Service
	server  *httptest.Server
	client  *attestclient.Client
	clock   *testClock
}

func newTestServer(t *testing.T, config Config, opts ...Option) *testServer {
	t.Helper()
	clock := &testClock{now: time.Unix(1700000000, 0)}
	logger := shared.WrapLogger("attester-test", zaptest.NewLogger(t))

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	service := NewService(config, logger, opts...)
	server := httptest.NewServer(service.Handler())
	t.Cleanup(server.Close)

	return &testServer{
		service: service,
		server:  server,
		client:  attestclient.New(server.URL),
		clock:   clock,
	}
}

func stringPtr(s string) *string { return &s }

func TestEndToEndAttestAndSubmit(t *testing.T) {
	ts := newTestServer(t, DefaultConfig())
	ctx := context.Background()

	reg, err := ts.client.RegisterELF(ctx, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)
	require.NotEmpty(t, reg.ProgramID)
	_, err = time.Parse(time.RFC3339, reg.RegisteredAt)
	require.NoError(t, err)

	att, err := ts.client.Attest(ctx, attestclient.AttestRequest{
		ProgramID:     reg.ProgramID,
		InputBytes:    attestclient.ByteList{1, 2, 3},
		VerifyLocally: true,
	})
	require.NoError(t, err)

	vkHash, err := hexutil.Decode(att.VKHash)
	require.NoError(t, err)
	assert.Len(t, vkHash, 32)
	require.NotEmpty(t, att.Proof)
	assert.NotContains(t, att.Proof, "0x")
	assert.Equal(t, "010203", att.PublicValues)
	assert.JSONEq(t, `{}`, string(att.VerifiedOutput))

	require.NoError(t, ts.client.VerifyAttestation(ctx, attestclient.VerifyAttestationRequest{
		ProgramID:    reg.ProgramID,
		Proof:        att.Proof,
		PublicValues: att.PublicValues,
	}))

	err = ts.client.VerifyAttestation(ctx, attestclient.VerifyAttestationRequest{
		ProgramID:    reg.ProgramID,
		Proof:        att.Proof,
		PublicValues: "010204",
	})
	assert.True(t, shared.IsKind(err, shared.KindPolicy), "got %v", err)

	proofDoc, err := json.Marshal(map[string]string{"proof": att.Proof, "vk_hash": att.VKHash})
	require.NoError(t, err)

	proofID, err := ts.client.SubmitProof(ctx, proofstore.Submission{
		SessionID:     "sess_abc",
		ToolName:      "get-ticket-price",
		Request:       json.RawMessage(`{"destination":"Paris"}`),
		Response:      json.RawMessage(`{"price":420}`),
		Proof:         proofDoc,
		Verified:      true,
		WorkflowStage: stringPtr("pricing"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, proofID)

	count, err := ts.client.Count(ctx, "sess_abc")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	data, err := ts.client.GetProof(ctx, proofID)
	require.NoError(t, err)
	assert.Equal(t, "sess_abc", data.Proof.SessionID)
	assert.Equal(t, uint64(1700000000), data.Proof.Timestamp)
	require.NotNil(t, data.Proof.WorkflowStage)
	assert.Equal(t, "pricing", *data.Proof.WorkflowStage)
	assert.Equal(t, attestclient.VerificationInfo{
		Protocol:           "Reclaim",
		Issuer:             "Agent-B",
		TimestampVerified:  true,
		SignatureAlgorithm: "ECDSA",
		CanVerifyOnchain:   true,
	}, data.VerificationInfo)

	session, err := ts.client.SessionProofs(ctx, "sess_abc")
	require.NoError(t, err)
	assert.Equal(t, 1, session.Count)
	require.Len(t, session.Proofs, 1)
	assert.Equal(t, proofID, session.Proofs[0].ProofID)
	assert.Equal(t, "zk-attestation-service", session.VerificationMetadata.VerificationService)
}

func TestVerifyEndpointEnforcesFreshness(t *testing.T) {
	ts := newTestServer(t, DefaultConfig())
	ctx := context.Background()

	fresh, err := ts.client.SubmitProof(ctx, proofstore.Submission{
		SessionID: "sess_fresh",
		ToolName:  "retrieve-payment-credentials",
		Proof:     json.RawMessage(`{}`),
		Verified:  true,
	})
	require.NoError(t, err)

	unverified, err := ts.client.SubmitProof(ctx, proofstore.Submission{
		SessionID: "sess_fresh",
		ToolName:  "retrieve-payment-credentials",
		Proof:     json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	_, err = ts.client.VerifyProof(ctx, fresh)
	require.NoError(t, err)

	_, err = ts.client.VerifyProof(ctx, unverified)
	assert.True(t, shared.IsKind(err, shared.KindPolicy), "got %v", err)

	ts.clock.Advance(5*time.Minute + time.Second)

	_, err = ts.client.VerifyProof(ctx, fresh)
	assert.True(t, shared.IsKind(err, shared.KindPolicy), "got %v", err)

	// the plain lookup does not care about age
	_, err = ts.client.GetProof(ctx, fresh)
	assert.NoError(t, err)
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, DefaultConfig())
	ctx := context.Background()

	_, err := ts.client.GetProof(ctx, "missing")
	assert.True(t, shared.IsKind(err, shared.KindNotFound), "got %v", err)

	_, err = ts.client.VerifyProof(ctx, "missing")
	assert.True(t, shared.IsKind(err, shared.KindNotFound), "got %v", err)

	_, err = ts.client.Attest(ctx, attestclient.AttestRequest{ProgramID: "missing", InputBytes: attestclient.ByteList{1}})
	assert.True(t, shared.IsKind(err, shared.KindNotFound), "got %v", err)

	resp, err := http.Get(ts.server.URL + "/proofs/some-id/unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	count, err := ts.client.Count(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, count)

	session, err := ts.client.SessionProofs(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, session.Proofs)
	assert.Empty(t, session.Proofs)
}

func TestInvalidBodiesAreRejected(t *testing.T) {
	ts := newTestServer(t, DefaultConfig())

	cases := []struct {
		name string
		path string
		body string
	}{
		{"attest missing program", "/attest", `{"input_bytes":[1,2,3]}`},
		{"attest byte out of range", "/attest", `{"program_id":"p1","input_bytes":[1,300]}`},
		{"attest bad hex input", "/attest", `{"program_id":"p1","input_bytes":"0xzz"}`},
		{"attest not json", "/attest", `{"program_id":`},
		{"submit missing session", "/proofs/submit", `{"tool_name":"t","proof":{}}`},
		{"submit empty tool", "/proofs/submit", `{"session_id":"s","tool_name":"","proof":{}}`},
		{"submit negative sequence", "/proofs/submit", `{"session_id":"s","tool_name":"t","proof":{},"sequence":-1}`},
		{"verify attestation bad hex", "/attest/verify", `{"program_id":"p1","proof":"abc","public_values":""}`},
		{"verify claim unknown strategy", "/verify-claim", `{"strategy":"magic","proof":{}}`},
		{"verify claim missing proof", "/verify-claim", `{"strategy":"sdk"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(ts.server.URL+tc.path, "application/json", strings.NewReader(tc.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body attestclient.ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, "input_error", body.Kind)
		})
	}
}

func TestAttestAcceptsHexInput(t *testing.T) {
	ts := newTestServer(t, DefaultConfig())
	ctx := context.Background()

	reg, err := ts.client.RegisterELF(ctx, []byte{0x7F, 'E', 'L', 'F'})
	require.NoError(t, err)

	body := `{"program_id":"` + reg.ProgramID + `","input_bytes":"0x0a0b","claimed_output":{"ok":true}}`
	resp, err := http.Post(ts.server.URL+"/attest", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out attestclient.AttestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "0a0b", out.PublicValues)
	assert.JSONEq(t, `{"ok":true}`, string(out.VerifiedOutput))
}

func TestRegisterELFLimits(t *testing.T) {
	config := DefaultConfig()
	config.MaxELFBytes = 16
	ts := newTestServer(t, config)
	ctx := context.Background()

	_, err := ts.client.RegisterELF(ctx, bytes.Repeat([]byte{0x01}, 16))
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("elf", "big.elf")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{0x01}, 17))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.server.URL+"/register-elf", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	var tooBig attestclient.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tooBig))
	assert.Equal(t, "input_error", tooBig.Kind)
	assert.Contains(t, tooBig.Error, "exceeds")

	_, err = ts.client.RegisterELF(ctx, nil)
	assert.True(t, shared.IsKind(err, shared.KindInput), "got %v", err)

	resp, err = http.Post(ts.server.URL+"/register-elf", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, 1, ts.service.registry.Len())
}

func TestVerifyClaimOffchain(t *testing.T) {
	ts := newTestServer(t, DefaultConfig())
	ctx := context.Background()

	witness, err := shared.GenerateSigningKeyPair()
	require.NoError(t, err)
	raw := signedSDKProof(t, witness, witness.GetEthAddress().Hex())

	result, err := ts.client.VerifyClaim(ctx, proofverifier.OffchainSDK, raw)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, proofverifier.OffchainSDK, result.Strategy)
	assert.Equal(t, 1, result.SignaturesCount)

	stranger, err := shared.GenerateSigningKeyPair()
	require.NoError(t, err)
	raw = signedSDKProof(t, witness, stranger.GetEthAddress().Hex())

	_, err = ts.client.VerifyClaim(ctx, proofverifier.OffchainSDK, raw)
	assert.True(t, shared.IsKind(err, shared.KindPolicy), "got %v", err)
}

func TestVerifyClaimOnchainRPCFailure(t *testing.T) {
	dialErr := errors.New("connection refused")
	ts := newTestServer(t, DefaultConfig(), WithDialer(func(ctx context.Context, rpcURL string) (proofverifier.ChainBackend, error) {
		return nil, dialErr
	}))

	witness, err := shared.GenerateSigningKeyPair()
	require.NoError(t, err)
	raw := signedSDKProof(t, witness, witness.GetEthAddress().Hex())

	resp, err := http.Post(ts.server.URL+"/verify-claim", "application/json",
		strings.NewReader(`{"strategy":"onchain-gas-free","proof":`+string(raw)+`}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body attestclient.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "infra_error", body.Kind)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, DefaultConfig())

	resp, err := http.Get(ts.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func signedSDKProof(t *testing.T, witness *shared.SigningKeyPair, witnessID string) json.RawMessage {
	t.Helper()
	owner, err := shared.GenerateSigningKeyPair()
	require.NoError(t, err)

	info := proofverifier.ClaimInfo{
		Provider:   "http",
		Parameters: `{"method":"POST","url":"https://justpay.zeroproofai.com/tools/retrieve-payment-credentials"}`,
		Context:    `{"extractedParameters":{"status":"confirmed"}}`,
	}
	identifier := proofverifier.ComputeClaimIdentifier(info).Hex()
	ownerHex := owner.GetEthAddress().Hex()

	sig, err := witness.SignData([]byte(proofverifier.ClaimMessage(identifier, ownerHex, 1700000000, 1)))
	require.NoError(t, err)

	raw, err := json.Marshal(map[string]interface{}{
		"claimData": map[string]interface{}{
			"provider":   info.Provider,
			"parameters": info.Parameters,
			"context":    info.Context,
			"identifier": identifier,
			"owner":      ownerHex,
			"timestampS": 1700000000,
			"epoch":      1,
		},
		"signatures": []string{hexutil.Encode(sig)},
		"witnesses":  []map[string]string{{"id": witnessID, "url": "wss://attestor.reclaimprotocol.org/ws"}},
	})
	require.NoError(t, err)
	return raw
}

func TestProofHookSeesSubmissions(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	ts := newTestServer(t, DefaultConfig(), WithProofHook(func(p proofstore.StoredProof) {
		mu.Lock()
		seen = append(seen, p.ProofID)
		mu.Unlock()
	}))

	id, err := ts.client.SubmitProof(context.Background(), proofstore.Submission{
		SessionID: "sess_hook",
		ToolName:  "get-ticket-price",
		Proof:     json.RawMessage(`{}`),
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{id}, seen)
}
