package proofverifier

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"zk-attestation/shared"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// ChainBackend is the subset of ethclient.Client used by the on-chain strategies
type ChainBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Dialer opens a ChainBackend for an RPC URL
type Dialer func(ctx context.Context, rpcURL string) (ChainBackend, error)

// DialEthClient is the production Dialer
func DialEthClient(ctx context.Context, rpcURL string) (ChainBackend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// OnchainConfig configures the on-chain strategies
type OnchainConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKey      string // transactional strategy only
	MinBalanceWei   *big.Int
	ReceiptPoll     time.Duration
}

// LoadOnchainConfig reads SEPOLIA_RPC_URL, RECLAIM_ADDRESS and PRIVATE_KEY
func LoadOnchainConfig() OnchainConfig {
	return OnchainConfig{
		RPCURL:          shared.GetEnvOrDefault("SEPOLIA_RPC_URL", DefaultRPCURL),
		ContractAddress: shared.GetEnvOrDefault("RECLAIM_ADDRESS", DefaultContractAddress),
		PrivateKey:      shared.GetEnvOrDefault("PRIVATE_KEY", ""),
		MinBalanceWei:   MinTransactionBalanceWei,
		ReceiptPoll:     shared.GetEnvDurationOrDefault("RECEIPT_POLL_INTERVAL", 2*time.Second),
	}
}

// OnchainVerifier submits proofs to the Reclaim verifier contract
type OnchainVerifier struct {
	config OnchainConfig
	dial   Dialer
	logger *zap.Logger
}

func NewOnchainVerifier(config OnchainConfig, dial Dialer, logger *zap.Logger) *OnchainVerifier {
	if dial == nil {
		dial = DialEthClient
	}
	if config.MinBalanceWei == nil {
		config.MinBalanceWei = MinTransactionBalanceWei
	}
	if config.ReceiptPoll <= 0 {
		config.ReceiptPoll = 2 * time.Second
	}
	return &OnchainVerifier{config: config, dial: dial, logger: logger}
}

type chainSession struct {
	client   ChainBackend
	chainID  *big.Int
	contract common.Address
	calldata []byte
}

// connect validates the contract address, dials, and checks that the
// verifier contract is deployed.
func (v *OnchainVerifier) connect(ctx context.Context, op string, proof *Proof) (*chainSession, error) {
	if !common.IsHexAddress(v.config.ContractAddress) {
		return nil, shared.NewInputError(op, "malformed contract address %q", v.config.ContractAddress)
	}
	contract := common.HexToAddress(v.config.ContractAddress)

	calldata, err := EncodeVerifyProofCalldata(proof)
	if err != nil {
		return nil, err
	}

	client, err := v.dial(ctx, v.config.RPCURL)
	if err != nil {
		return nil, shared.NewInfraError(op, "failed to connect to RPC "+v.config.RPCURL, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, shared.NewInfraError(op, "failed to get chain id from "+v.config.RPCURL, err)
	}

	code, err := client.CodeAt(ctx, contract, nil)
	if err != nil {
		client.Close()
		return nil, shared.NewInfraError(op, "failed to read contract code", err)
	}
	if len(code) == 0 {
		client.Close()
		return nil, shared.NewInfraError(op, "no contract deployed at "+contract.Hex(), nil)
	}

	v.logger.Debug("Connected to verifier contract",
		zap.String("op", op),
		zap.String("chain_id", chainID.String()),
		zap.String("contract", contract.Hex()),
		zap.Int("calldata_bytes", len(calldata)))

	return &chainSession{client: client, chainID: chainID, contract: contract, calldata: calldata}, nil
}

// VerifyGasFree runs verifyProof as a static call. Success is a return
// word ending in 0x01.
func (v *OnchainVerifier) VerifyGasFree(ctx context.Context, proof *Proof) (*VerificationResult, error) {
	const op = "verify_gas_free"

	s, err := v.connect(ctx, op, proof)
	if err != nil {
		return nil, err
	}
	defer s.client.Close()

	out, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &s.contract, Data: s.calldata}, nil)
	if err != nil {
		if isRevert(err) {
			return nil, shared.NewPolicyError(op, "verifier contract rejected proof: %v", err)
		}
		return nil, shared.NewInfraError(op, "contract call failed", err)
	}

	if len(out) < 32 {
		return nil, shared.NewInfraError(op, "invalid return value from contract", errors.New("short return data"))
	}
	if out[31] != 1 {
		return nil, shared.NewPolicyError(op, "contract verification returned false")
	}

	v.logger.Info("Proof verified by static call",
		zap.String("identifier", proof.SignedClaim.Claim.Identifier.Hex()),
		zap.String("chain_id", s.chainID.String()))

	result := newOnchainResult(OnchainGasFree, proof, s.chainID)
	return result, nil
}

// VerifyTransactional submits verifyProof as a signed transaction and
// waits for it to be mined with status 1.
func (v *OnchainVerifier) VerifyTransactional(ctx context.Context, proof *Proof) (*VerificationResult, error) {
	const op = "verify_transactional"

	if v.config.PrivateKey == "" {
		return nil, shared.NewInputError(op, "PRIVATE_KEY is required for transactional verification")
	}
	signer, err := shared.LoadSigningKeyPair(v.config.PrivateKey)
	if err != nil {
		return nil, shared.NewInputError(op, "%v", err)
	}
	from := signer.GetEthAddress()

	s, err := v.connect(ctx, op, proof)
	if err != nil {
		return nil, err
	}
	defer s.client.Close()

	balance, err := s.client.BalanceAt(ctx, from, nil)
	if err != nil {
		return nil, shared.NewInfraError(op, "failed to read signer balance", err)
	}
	if balance.Cmp(v.config.MinBalanceWei) < 0 {
		return nil, shared.NewInfraError(op, "insufficient balance: "+balance.String()+" wei, need "+v.config.MinBalanceWei.String(), nil)
	}

	msg := ethereum.CallMsg{From: from, To: &s.contract, Data: s.calldata}
	gas, err := s.client.EstimateGas(ctx, msg)
	if err != nil {
		if isRevert(err) {
			return nil, shared.NewPolicyError(op, "verifier contract rejected proof during gas estimation: %v", err)
		}
		return nil, shared.NewInfraError(op, "gas estimation failed", err)
	}

	nonce, err := s.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, shared.NewInfraError(op, "failed to get nonce", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, shared.NewInfraError(op, "failed to get gas price", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &s.contract,
		Value:    big.NewInt(0),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     s.calldata,
	})
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), signer.PrivateKey)
	if err != nil {
		return nil, shared.NewInfraError(op, "failed to sign transaction", err)
	}
	txHash := signedTx.Hash().Hex()

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, shared.NewInfraError(op, "failed to send transaction", err).WithTxHash(txHash)
	}
	v.logger.Info("Verification transaction sent",
		zap.String("tx_hash", txHash),
		zap.Uint64("gas", gas),
		zap.String("from", from.Hex()))

	receipt, err := v.waitMined(ctx, s.client, signedTx.Hash())
	if err != nil {
		return nil, shared.NewInfraError(op, "failed waiting for receipt", err).WithTxHash(txHash)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, shared.NewPolicyError(op, "transaction reverted").WithTxHash(txHash)
	}

	result := newOnchainResult(OnchainTransactional, proof, s.chainID)
	result.TxHash = txHash
	result.GasUsed = receipt.GasUsed
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}

	v.logger.Info("Proof verified on-chain",
		zap.String("tx_hash", txHash),
		zap.Uint64("gas_used", receipt.GasUsed),
		zap.Uint64("block", result.BlockNumber))

	return result, nil
}

// waitMined polls for the receipt until the transaction is included
func (v *OnchainVerifier) waitMined(ctx context.Context, client ChainBackend, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(v.config.ReceiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newOnchainResult(strategy Strategy, proof *Proof, chainID *big.Int) *VerificationResult {
	claim := proof.SignedClaim.Claim
	match := ComputeClaimIdentifier(proof.ClaimInfo) == claim.Identifier
	return &VerificationResult{
		Strategy:               strategy,
		Identifier:             claim.Identifier.Hex(),
		Owner:                  claim.Owner.Hex(),
		TimestampS:             claim.TimestampS,
		Epoch:                  claim.Epoch,
		SignaturesCount:        len(proof.SignedClaim.Signatures),
		ChainID:                chainID.String(),
		IdentifierMatchesClaim: &match,
	}
}

func isRevert(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
