package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfWrappedError(t *testing.T) {
	base := NewPolicyError("payment_gate", "url %q not whitelisted", "https://evil.example")
	wrapped := fmt.Errorf("gate: %w", base)

	assert.Equal(t, KindPolicy, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindPolicy))
	assert.False(t, IsKind(wrapped, KindInfra))
	assert.False(t, KindOf(wrapped).Retryable())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.False(t, IsKind(nil, KindInternal))
}

func TestInfraErrorUnwrapAndTxHash(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewInfraError("send_transaction", "transaction reverted", cause).WithTxHash("0xabc")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "0xabc", TxHashOf(fmt.Errorf("outer: %w", err)))
	assert.Contains(t, err.Error(), "tx 0xabc")
	assert.Contains(t, err.Error(), "infra_error")
	assert.True(t, KindInfra.Retryable())
}

func TestMessageOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewNotFoundError("get_proof", "proof %s not found", "p1"))
	assert.Equal(t, "proof p1 not found", MessageOf(err))
	assert.Equal(t, "boom", MessageOf(errors.New("boom")))
}
