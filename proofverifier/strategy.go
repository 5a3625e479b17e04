package proofverifier

import (
	"fmt"
	"strings"
)

// Strategy selects how a claim is verified
type Strategy int

const (
	// OffchainSDK recovers the witness address locally
	OffchainSDK Strategy = iota
	// OnchainGasFree issues a static call to the verifier contract
	OnchainGasFree
	// OnchainTransactional submits a state-changing transaction
	OnchainTransactional
)

func (s Strategy) String() string {
	switch s {
	case OffchainSDK:
		return "offchain-sdk"
	case OnchainGasFree:
		return "onchain-gas-free"
	case OnchainTransactional:
		return "onchain-transactional"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy accepts the String form, case-insensitively
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "offchain-sdk", "sdk", "":
		return OffchainSDK, nil
	case "onchain-gas-free", "gas-free":
		return OnchainGasFree, nil
	case "onchain-transactional", "transactional":
		return OnchainTransactional, nil
	}
	return OffchainSDK, fmt.Errorf("unknown verification strategy %q", s)
}

func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
