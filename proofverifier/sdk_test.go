package proofverifier

import (
	"encoding/json"
	"strings"
	"testing"

	"zk-attestation/shared"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimMessageFormat(t *testing.T) {
	msg := ClaimMessage("0xABCDEF", "0xDeadBeef", 1700000000, 2)
	assert.Equal(t, "0xabcdef\n0xdeadbeef\n1700000000\n2", msg)
}

func TestVerifySDKMatchingWitness(t *testing.T) {
	f := newSignedFixture(t)

	result, err := VerifySDK(f.sdkJSON(t, f.witnessAddress().Hex()))
	require.NoError(t, err)
	assert.Equal(t, OffchainSDK, result.Strategy)
	assert.Equal(t, f.witnessAddress().Hex(), result.Signer)
	assert.Equal(t, uint32(testTimestamp), result.TimestampS)
	assert.Equal(t, 1, result.SignaturesCount)
	require.NotNil(t, result.IdentifierMatchesClaim)
	assert.True(t, *result.IdentifierMatchesClaim)
}

func TestVerifySDKCaseInsensitiveWitness(t *testing.T) {
	f := newSignedFixture(t)
	_, err := VerifySDK(f.sdkJSON(t, strings.ToLower(f.witnessAddress().Hex())))
	require.NoError(t, err)
}

func TestVerifySDKWrongWitness(t *testing.T) {
	f := newSignedFixture(t)
	other, err := shared.GenerateSigningKeyPair()
	require.NoError(t, err)

	_, err = VerifySDK(f.sdkJSON(t, other.GetEthAddress().Hex()))
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindPolicy))
}

func TestVerifySDKUnwrappedForm(t *testing.T) {
	f := newSignedFixture(t)
	var outer struct {
		Proof json.RawMessage `json:"proof"`
	}
	require.NoError(t, json.Unmarshal(f.sdkJSON(t, f.witnessAddress().Hex()), &outer))

	_, err := VerifySDK(outer.Proof)
	require.NoError(t, err)
}

func TestVerifySDKTrustsSuppliedIdentifier(t *testing.T) {
	f := newSignedFixture(t)
	// sign over an identifier that is not keccak(provider||parameters||context)
	f.identifier = "0x" + strings.Repeat("ab", 32)
	sig, err := f.witness.SignData([]byte(ClaimMessage(f.identifier, f.owner, testTimestamp, testEpoch)))
	require.NoError(t, err)
	f.signature = hexutil.Encode(sig)

	result, err := VerifySDK(f.sdkJSON(t, f.witnessAddress().Hex()))
	require.NoError(t, err)
	require.NotNil(t, result.IdentifierMatchesClaim)
	assert.False(t, *result.IdentifierMatchesClaim)
}

func TestVerifySDKInputErrors(t *testing.T) {
	f := newSignedFixture(t)
	witness := f.witnessAddress().Hex()

	mutate := func(fn func(p map[string]interface{})) []byte {
		var doc map[string]map[string]interface{}
		require.NoError(t, json.Unmarshal(f.sdkJSON(t, witness), &doc))
		fn(doc["proof"])
		raw, err := json.Marshal(doc)
		require.NoError(t, err)
		return raw
	}

	cases := map[string][]byte{
		"missing claimData": mutate(func(p map[string]interface{}) { delete(p, "claimData") }),
		"missing owner": mutate(func(p map[string]interface{}) {
			delete(p["claimData"].(map[string]interface{}), "owner")
		}),
		"missing epoch": mutate(func(p map[string]interface{}) {
			delete(p["claimData"].(map[string]interface{}), "epoch")
		}),
		"empty signatures": mutate(func(p map[string]interface{}) { p["signatures"] = []string{} }),
		"empty witnesses":  mutate(func(p map[string]interface{}) { p["witnesses"] = []string{} }),
		"short signature": mutate(func(p map[string]interface{}) {
			p["signatures"] = []string{f.signature[:len(f.signature)-2]}
		}),
		"bad recovery id": mutate(func(p map[string]interface{}) {
			p["signatures"] = []string{f.signature[:len(f.signature)-2] + "05"}
		}),
		"bad hex":  mutate(func(p map[string]interface{}) { p["signatures"] = []string{"0xzz"} }),
		"not json": []byte("nope"),
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := VerifySDK(raw)
			require.Error(t, err)
			assert.True(t, shared.IsKind(err, shared.KindInput), "got %v", err)
		})
	}
}
