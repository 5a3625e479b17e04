package proofverifier

import (
	"encoding/json"
	"testing"

	"zk-attestation/shared"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

const (
	testProvider   = "http"
	testParameters = `{"body":"","method":"POST","url":"https://justpay.zeroproofai.com/tools/retrieve-payment-credentials"}`
	testContext    = `{"extractedParameters":{"status":"confirmed"},"providerHash":"0x01"}`
	testTimestamp  = uint64(1700000000)
	testEpoch      = uint64(1)
)

type signedFixture struct {
	witness    *shared.SigningKeyPair
	identifier string
	owner      string
	signature  string
}

func newSignedFixture(t *testing.T) *signedFixture {
	t.Helper()
	witness, err := shared.GenerateSigningKeyPair()
	require.NoError(t, err)
	owner, err := shared.GenerateSigningKeyPair()
	require.NoError(t, err)

	identifier := ComputeClaimIdentifier(ClaimInfo{Provider: testProvider, Parameters: testParameters, Context: testContext}).Hex()
	ownerHex := owner.GetEthAddress().Hex()

	sig, err := witness.SignData([]byte(ClaimMessage(identifier, ownerHex, testTimestamp, testEpoch)))
	require.NoError(t, err)

	return &signedFixture{
		witness:    witness,
		identifier: identifier,
		owner:      ownerHex,
		signature:  hexutil.Encode(sig),
	}
}

// sdkJSON renders the SDK form wrapped under "proof", with the given witness id
func (f *signedFixture) sdkJSON(t *testing.T, witnessID string) []byte {
	t.Helper()
	doc := map[string]interface{}{
		"proof": map[string]interface{}{
			"claimData": map[string]interface{}{
				"provider":   testProvider,
				"parameters": testParameters,
				"context":    testContext,
				"identifier": f.identifier,
				"owner":      f.owner,
				"timestampS": testTimestamp,
				"epoch":      testEpoch,
			},
			"signatures":               []string{f.signature},
			"witnesses":                []map[string]string{{"id": witnessID, "url": "wss://attestor.reclaimprotocol.org/ws"}},
			"extractedParameterValues": map[string]string{"status": "confirmed"},
		},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return raw
}

func (f *signedFixture) onchainJSON(t *testing.T) []byte {
	t.Helper()
	doc := map[string]interface{}{
		"onchainProof": map[string]interface{}{
			"claimInfo": map[string]string{
				"provider":   testProvider,
				"parameters": testParameters,
				"context":    testContext,
			},
			"signedClaim": map[string]interface{}{
				"claim": map[string]interface{}{
					"identifier": f.identifier,
					"owner":      f.owner,
					"timestampS": testTimestamp,
					"epoch":      testEpoch,
				},
				"signatures": []string{f.signature},
			},
		},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	return raw
}

func (f *signedFixture) proof(t *testing.T) *Proof {
	t.Helper()
	p, err := ParseProof(f.onchainJSON(t))
	require.NoError(t, err)
	return p
}

func (f *signedFixture) witnessAddress() common.Address {
	return f.witness.GetEthAddress()
}
