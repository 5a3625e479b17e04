package proofstore

import (
	"time"

	"zk-attestation/shared"
)

// DefaultFreshnessWindow is the maximum proof age accepted for gating
const DefaultFreshnessWindow = 5 * time.Minute

// CheckFresh rejects proofs that are unverified or older than window
func CheckFresh(p *StoredProof, now time.Time, window time.Duration) error {
	if !p.Verified {
		return shared.NewPolicyError("verify_proof", "proof %s is not verified", p.ProofID)
	}

	nowS := now.Unix()
	if nowS < 0 {
		nowS = 0
	}
	age := time.Duration(0)
	if uint64(nowS) > p.Timestamp {
		age = time.Duration(uint64(nowS)-p.Timestamp) * time.Second
	}
	if age > window {
		return shared.NewPolicyError("verify_proof", "proof %s expired: age %s exceeds %s", p.ProofID, age, window)
	}
	return nil
}
