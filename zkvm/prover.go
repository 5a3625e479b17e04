package zkvm

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"zk-attestation/shared"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Proof layout: vk selector (4) || commitment (32) || groth16 proof
const (
	selectorSize   = 4
	commitmentSize = fr.Bytes
	proofHeader    = selectorSize + commitmentSize
)

// ProveRequest asks for a proof of one program execution
type ProveRequest struct {
	ProgramID     string
	Input         []byte
	ClaimedOutput json.RawMessage
	VerifyLocally bool
}

// ProveResult is returned to the caller of /attest
type ProveResult struct {
	Proof          []byte
	PublicValues   []byte
	VKHash         common.Hash
	VerifiedOutput json.RawMessage
	Verified       bool
	Duration       time.Duration
}

// Prover executes registered programs and produces Groth16 proofs
type Prover struct {
	registry *Registry
	keys     *KeyCache
	executor Executor
	pool     *WorkerPool
	logger   *zap.Logger
}

func NewProver(registry *Registry, keys *KeyCache, executor Executor, pool *WorkerPool, logger *zap.Logger) *Prover {
	if executor == nil {
		executor = CommitInputExecutor{}
	}
	return &Prover{
		registry: registry,
		keys:     keys,
		executor: executor,
		pool:     pool,
		logger:   logger,
	}
}

// Prove runs the program on the worker pool. claimed_output is echoed back
// unchecked; comparing it with PublicValues is up to the caller.
func (p *Prover) Prove(ctx context.Context, req ProveRequest) (*ProveResult, error) {
	program, err := p.registry.Get(req.ProgramID)
	if err != nil {
		return nil, err
	}

	var result *ProveResult
	err = p.pool.Run(ctx, func() error {
		var err error
		result, err = p.prove(program, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	result.VerifiedOutput = req.ClaimedOutput
	if len(bytes.TrimSpace(result.VerifiedOutput)) == 0 || string(result.VerifiedOutput) == "null" {
		result.VerifiedOutput = json.RawMessage("{}")
	}
	return result, nil
}

func (p *Prover) prove(program *Program, req ProveRequest) (*ProveResult, error) {
	start := time.Now()
	logger := p.logger.With(zap.String("program_id", program.ID))

	keys, err := p.keys.GetOrCreate(program.ID)
	if err != nil {
		return nil, err
	}

	publicValues, err := p.executor.Execute(program, req.Input)
	if err != nil {
		return nil, shared.NewInfraError("execute", "guest execution failed", err)
	}

	w, err := newExecutionWitness(program, req.Input, publicValues)
	if err != nil {
		return nil, shared.NewInfraError("prove", "failed to build witness", err)
	}

	fullWitness, err := frontend.NewWitness(w.assignment(), ecc.BN254.ScalarField())
	if err != nil {
		return nil, shared.NewInfraError("prove", "failed to assign witness", err)
	}

	proof, err := groth16.Prove(keys.CCS, keys.ProvingKey, fullWitness)
	if err != nil {
		return nil, shared.NewInfraError("prove", "groth16 proving failed", err)
	}

	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, shared.NewInfraError("prove", "failed to serialize proof", err)
	}

	commitment := w.commitment.Bytes()
	proofBytes := make([]byte, 0, proofHeader+proofBuf.Len())
	proofBytes = append(proofBytes, keys.Selector()...)
	proofBytes = append(proofBytes, commitment[:]...)
	proofBytes = append(proofBytes, proofBuf.Bytes()...)

	result := &ProveResult{
		Proof:        proofBytes,
		PublicValues: publicValues,
		VKHash:       keys.VKHash,
	}

	if req.VerifyLocally {
		if err := p.verify(program, keys, proofBytes, publicValues); err != nil {
			logger.Error("Local proof verification failed", zap.Error(err))
			return nil, shared.NewInfraError("prove", "local verification of generated proof failed", err)
		}
		result.Verified = true
	}

	result.Duration = time.Since(start)
	logger.Info("Generated proof",
		zap.Int("proof_bytes", len(proofBytes)),
		zap.Int("public_values_bytes", len(publicValues)),
		zap.Bool("verified_locally", result.Verified),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// VerifyProof checks a proof produced by Prove against the program's
// cached verifying key and the claimed public values.
func (p *Prover) VerifyProof(ctx context.Context, programID string, proofBytes, publicValues []byte) error {
	program, err := p.registry.Get(programID)
	if err != nil {
		return err
	}

	return p.pool.Run(ctx, func() error {
		keys, err := p.keys.GetOrCreate(programID)
		if err != nil {
			return err
		}
		return p.verify(program, keys, proofBytes, publicValues)
	})
}

func (p *Prover) verify(program *Program, keys *ProgramKeys, proofBytes, publicValues []byte) error {
	if len(proofBytes) <= proofHeader {
		return shared.NewInputError("verify_proof", "proof too short: %d bytes", len(proofBytes))
	}
	if !bytes.Equal(proofBytes[:selectorSize], keys.Selector()) {
		return shared.NewPolicyError("verify_proof", "proof selector 0x%x does not match verifying key %s",
			proofBytes[:selectorSize], keys.VKHash.Hex())
	}

	commitment := fieldElement(proofBytes[selectorSize:proofHeader])
	assignment := publicAssignment(
		fieldElement(program.Digest[:]),
		fieldElement(crypto.Keccak256(publicValues)),
		commitment,
	)

	publicWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return shared.NewInfraError("verify_proof", "failed to build public witness", err)
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes[proofHeader:])); err != nil {
		return shared.NewInputError("verify_proof", "malformed groth16 proof: %v", err)
	}

	if err := groth16.Verify(proof, keys.VerifyingKey, publicWitness); err != nil {
		return shared.NewPolicyError("verify_proof", "proof rejected: %v", err)
	}
	return nil
}
