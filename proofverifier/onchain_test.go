package proofverifier

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	"zk-attestation/shared"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBackend struct {
	chainID       *big.Int
	code          []byte
	callResult    []byte
	callErr       error
	balance       *big.Int
	gas           uint64
	estimateErr   error
	receiptStatus uint64
	receiptMisses int

	lastCall ethereum.CallMsg
	sent     []*types.Transaction
	closed   bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID:       big.NewInt(11155111),
		code:          []byte{0x60, 0x80},
		callResult:    boolWord(true),
		balance:       big.NewInt(1_000_000_000_000_000_000),
		gas:           250_000,
		receiptStatus: types.ReceiptStatusSuccessful,
	}
}

func boolWord(v bool) []byte {
	out := make([]byte, 32)
	if v {
		out[31] = 1
	}
	return out
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) { return b.chainID, nil }

func (b *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return b.code, nil
}

func (b *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.lastCall = msg
	return b.callResult, b.callErr
}

func (b *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return b.balance, nil
}

func (b *fakeBackend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.lastCall = msg
	return b.gas, b.estimateErr
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 7, nil }

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.sent = append(b.sent, tx)
	return nil
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	if b.receiptMisses > 0 {
		b.receiptMisses--
		return nil, ethereum.NotFound
	}
	return &types.Receipt{
		Status:      b.receiptStatus,
		TxHash:      txHash,
		GasUsed:     b.gas / 2,
		BlockNumber: big.NewInt(42),
	}, nil
}

func (b *fakeBackend) Close() { b.closed = true }

func newTestOnchainVerifier(t *testing.T, backend *fakeBackend, privateKey string) *OnchainVerifier {
	t.Helper()
	dial := func(context.Context, string) (ChainBackend, error) { return backend, nil }
	return NewOnchainVerifier(OnchainConfig{
		RPCURL:          "http://rpc.test",
		ContractAddress: DefaultContractAddress,
		PrivateKey:      privateKey,
		ReceiptPoll:     time.Millisecond,
	}, dial, zaptest.NewLogger(t))
}

func TestGasFreeReturnWord(t *testing.T) {
	f := newSignedFixture(t)

	cases := []struct {
		name   string
		result []byte
		ok     bool
		kind   shared.ErrorKind
	}{
		{"true word", boolWord(true), true, 0},
		{"false word", boolWord(false), false, shared.KindPolicy},
		{"short return", []byte{0x01}, false, shared.KindInfra},
		{"empty return", nil, false, shared.KindInfra},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := newFakeBackend()
			backend.callResult = tc.result
			v := newTestOnchainVerifier(t, backend, "")

			result, err := v.VerifyGasFree(context.Background(), f.proof(t))
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, OnchainGasFree, result.Strategy)
				assert.Equal(t, f.identifier, result.Identifier)
				assert.Equal(t, 1, result.SignaturesCount)
				assert.Equal(t, "11155111", result.ChainID)
				assert.True(t, bytes.Equal(VerifyProofSelector(), backend.lastCall.Data[:4]))
				assert.Equal(t, common.HexToAddress(DefaultContractAddress), *backend.lastCall.To)
			} else {
				require.Error(t, err)
				assert.Equal(t, tc.kind, shared.KindOf(err))
			}
			assert.True(t, backend.closed)
		})
	}
}

func TestGasFreeContractNotDeployed(t *testing.T) {
	backend := newFakeBackend()
	backend.code = nil
	v := newTestOnchainVerifier(t, backend, "")

	_, err := v.VerifyGasFree(context.Background(), newSignedFixture(t).proof(t))
	require.Error(t, err)
	assert.True(t, shared.IsKind(err, shared.KindInfra))
	assert.ErrorContains(t, err, "no contract deployed")
}

func TestGasFreeRevertIsPolicy(t *testing.T) {
	backend := newFakeBackend()
	backend.callErr = errors.New("execution reverted: Invalid signature")
	v := newTestOnchainVerifier(t, backend, "")

	_, err := v.VerifyGasFree(context.Background(), newSignedFixture(t).proof(t))
	assert.True(t, shared.IsKind(err, shared.KindPolicy))

	backend.callErr = errors.New("dial tcp: connection refused")
	_, err = v.VerifyGasFree(context.Background(), newSignedFixture(t).proof(t))
	assert.True(t, shared.IsKind(err, shared.KindInfra))
}

func TestGasFreeMalformedAddress(t *testing.T) {
	v := NewOnchainVerifier(OnchainConfig{ContractAddress: "0x1234"}, func(context.Context, string) (ChainBackend, error) {
		t.Fatal("dial must not be reached")
		return nil, nil
	}, zaptest.NewLogger(t))

	_, err := v.VerifyGasFree(context.Background(), newSignedFixture(t).proof(t))
	assert.True(t, shared.IsKind(err, shared.KindInput))
}

func TestGasFreeDialFailure(t *testing.T) {
	v := NewOnchainVerifier(OnchainConfig{ContractAddress: DefaultContractAddress, RPCURL: "http://down"},
		func(context.Context, string) (ChainBackend, error) { return nil, errors.New("refused") },
		zaptest.NewLogger(t))

	_, err := v.VerifyGasFree(context.Background(), newSignedFixture(t).proof(t))
	assert.True(t, shared.IsKind(err, shared.KindInfra))
	assert.ErrorContains(t, err, "http://down")
}

func newTestKey(t *testing.T) (string, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return hex.EncodeToString(crypto.FromECDSA(key)), crypto.PubkeyToAddress(key.PublicKey)
}

func TestTransactionalSuccess(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptMisses = 2
	key, from := newTestKey(t)
	v := newTestOnchainVerifier(t, backend, key)

	result, err := v.VerifyTransactional(context.Background(), newSignedFixture(t).proof(t))
	require.NoError(t, err)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, tx.Hash().Hex(), result.TxHash)
	assert.Equal(t, uint64(250_000), tx.Gas())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, VerifyProofSelector(), tx.Data()[:4])
	assert.Equal(t, uint64(42), result.BlockNumber)
	assert.Equal(t, OnchainTransactional, result.Strategy)

	sender, err := types.Sender(types.NewEIP155Signer(backend.chainID), tx)
	require.NoError(t, err)
	assert.Equal(t, from, sender)
	assert.Equal(t, from, backend.lastCall.From)
}

func TestTransactionalRevertReportsTxHash(t *testing.T) {
	backend := newFakeBackend()
	backend.receiptStatus = types.ReceiptStatusFailed
	key, _ := newTestKey(t)
	v := newTestOnchainVerifier(t, backend, key)

	_, err := v.VerifyTransactional(context.Background(), newSignedFixture(t).proof(t))
	require.Error(t, err)
	require.Len(t, backend.sent, 1)
	assert.Equal(t, backend.sent[0].Hash().Hex(), shared.TxHashOf(err))
	assert.True(t, shared.IsKind(err, shared.KindPolicy))
}

func TestTransactionalInsufficientBalance(t *testing.T) {
	backend := newFakeBackend()
	backend.balance = big.NewInt(9_999_999_999_999_999)
	key, _ := newTestKey(t)
	v := newTestOnchainVerifier(t, backend, key)

	_, err := v.VerifyTransactional(context.Background(), newSignedFixture(t).proof(t))
	require.Error(t, err)
	assert.ErrorContains(t, err, "insufficient balance")
	assert.Empty(t, backend.sent)
}

func TestTransactionalRequiresKey(t *testing.T) {
	v := newTestOnchainVerifier(t, newFakeBackend(), "")
	_, err := v.VerifyTransactional(context.Background(), newSignedFixture(t).proof(t))
	assert.True(t, shared.IsKind(err, shared.KindInput))

	v = newTestOnchainVerifier(t, newFakeBackend(), "0xnothex")
	_, err = v.VerifyTransactional(context.Background(), newSignedFixture(t).proof(t))
	assert.True(t, shared.IsKind(err, shared.KindInput))
}

func TestTransactionalEstimateRevert(t *testing.T) {
	backend := newFakeBackend()
	backend.estimateErr = errors.New("execution reverted")
	key, _ := newTestKey(t)
	v := newTestOnchainVerifier(t, backend, key)

	_, err := v.VerifyTransactional(context.Background(), newSignedFixture(t).proof(t))
	assert.True(t, shared.IsKind(err, shared.KindPolicy))
	assert.Empty(t, backend.sent)
}

func TestVerifierDispatch(t *testing.T) {
	f := newSignedFixture(t)
	backend := newFakeBackend()
	v := NewVerifier(newTestOnchainVerifier(t, backend, ""), zaptest.NewLogger(t))

	result, err := v.Verify(context.Background(), OffchainSDK, f.sdkJSON(t, f.witnessAddress().Hex()))
	require.NoError(t, err)
	assert.Equal(t, OffchainSDK, result.Strategy)

	result, err = v.Verify(context.Background(), OnchainGasFree, f.onchainJSON(t))
	require.NoError(t, err)
	assert.Equal(t, OnchainGasFree, result.Strategy)

	// the stored form carries both shapes
	result, err = v.Verify(context.Background(), OnchainGasFree, f.sdkJSON(t, f.witnessAddress().Hex()))
	require.NoError(t, err)
	assert.Equal(t, f.identifier, result.Identifier)

	_, err = NewVerifier(nil, zaptest.NewLogger(t)).Verify(context.Background(), OnchainGasFree, f.onchainJSON(t))
	assert.True(t, shared.IsKind(err, shared.KindInput))
}
