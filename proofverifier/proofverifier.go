package proofverifier

import (
	"context"

	"zk-attestation/shared"

	"go.uber.org/zap"
)

// VerificationResult describes a successful verification
type VerificationResult struct {
	Strategy        Strategy `json:"strategy"`
	Identifier      string   `json:"identifier"`
	Owner           string   `json:"owner"`
	TimestampS      uint32   `json:"timestamp"`
	Epoch           uint32   `json:"epoch"`
	SignaturesCount int      `json:"signatures_count"`
	Signer          string   `json:"signer,omitempty"`
	ChainID         string   `json:"chain_id,omitempty"`
	TxHash          string   `json:"tx_hash,omitempty"`
	GasUsed         uint64   `json:"gas_used,omitempty"`
	BlockNumber     uint64   `json:"block_number,omitempty"`
	// IdentifierMatchesClaim is informational; a mismatch never fails verification
	IdentifierMatchesClaim *bool `json:"identifier_matches_claim,omitempty"`
}

// Verifier dispatches a claim to the selected strategy
type Verifier struct {
	onchain *OnchainVerifier
	logger  *zap.Logger
}

func NewVerifier(onchain *OnchainVerifier, logger *zap.Logger) *Verifier {
	return &Verifier{onchain: onchain, logger: logger}
}

// Verify checks raw with the given strategy. Only the first signature is
// checked by the off-chain strategy.
func (v *Verifier) Verify(ctx context.Context, strategy Strategy, raw []byte) (*VerificationResult, error) {
	logger := v.logger.With(zap.Stringer("strategy", strategy))

	var result *VerificationResult
	var err error
	switch strategy {
	case OffchainSDK:
		result, err = VerifySDK(raw)
	case OnchainGasFree, OnchainTransactional:
		if v.onchain == nil {
			return nil, shared.NewInputError("verify", "on-chain verification is not configured")
		}
		var proof *Proof
		proof, err = ParseProof(raw)
		if err != nil {
			break
		}
		if strategy == OnchainGasFree {
			result, err = v.onchain.VerifyGasFree(ctx, proof)
		} else {
			result, err = v.onchain.VerifyTransactional(ctx, proof)
		}
	default:
		return nil, shared.NewInputError("verify", "unsupported strategy %s", strategy)
	}

	if err != nil {
		if shared.IsKind(err, shared.KindPolicy) {
			logger.Warn("Claim rejected", zap.Error(err), zap.Bool("security_event", true))
		} else {
			logger.Error("Claim verification failed", zap.Error(err))
		}
		return nil, err
	}

	if result.IdentifierMatchesClaim != nil && !*result.IdentifierMatchesClaim {
		logger.Warn("Claim identifier differs from keccak(provider||parameters||context); using witness-supplied value",
			zap.String("identifier", result.Identifier))
	}
	logger.Info("Claim verified",
		zap.String("identifier", result.Identifier),
		zap.Int("signatures", result.SignaturesCount))
	return result, nil
}
