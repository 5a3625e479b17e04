package zkvm

import (
	"bytes"
	"sync"
	"sync/atomic"

	"zk-attestation/shared"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ProgramKeys is the Groth16 key pair generated for one program
type ProgramKeys struct {
	ProgramID    string
	CCS          constraint.ConstraintSystem
	ProvingKey   groth16.ProvingKey
	VerifyingKey groth16.VerifyingKey
	VKBytes      []byte
	VKHash       common.Hash
}

// Selector is the 4-byte verifying key prefix carried by every proof
func (k *ProgramKeys) Selector() []byte {
	return k.VKHash[:4]
}

// KeyCache memoizes per-program setup. Groth16 setup samples fresh
// randomness, so the cache is what keeps a program's keys stable.
type KeyCache struct {
	registry *Registry
	logger   *zap.Logger

	mu    sync.RWMutex
	keys  map[string]*ProgramKeys
	group singleflight.Group

	ccsOnce sync.Once
	ccs     constraint.ConstraintSystem
	ccsErr  error

	setups atomic.Int64
}

func NewKeyCache(registry *Registry, logger *zap.Logger) *KeyCache {
	return &KeyCache{
		registry: registry,
		logger:   logger,
		keys:     make(map[string]*ProgramKeys),
	}
}

// GetOrCreate returns the cached keys for programID, running setup on
// first use. Concurrent first requests for one id share a single setup.
func (c *KeyCache) GetOrCreate(programID string) (*ProgramKeys, error) {
	c.mu.RLock()
	keys, ok := c.keys[programID]
	c.mu.RUnlock()
	if ok {
		return keys, nil
	}

	v, err, _ := c.group.Do(programID, func() (interface{}, error) {
		c.mu.RLock()
		keys, ok := c.keys[programID]
		c.mu.RUnlock()
		if ok {
			return keys, nil
		}

		keys, err := c.setup(programID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.keys[programID] = keys
		c.mu.Unlock()
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ProgramKeys), nil
}

// Len returns the number of programs with cached keys
func (c *KeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// Setups returns how many setups have run since start
func (c *KeyCache) Setups() int64 {
	return c.setups.Load()
}

func (c *KeyCache) setup(programID string) (*ProgramKeys, error) {
	if _, err := c.registry.Get(programID); err != nil {
		return nil, err
	}

	ccs, err := c.constraintSystem()
	if err != nil {
		return nil, shared.NewInfraError("setup", "failed to compile execution circuit", err)
	}

	c.logger.Info("Running Groth16 setup",
		zap.String("program_id", programID),
		zap.Int("constraints", ccs.GetNbConstraints()))

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, shared.NewInfraError("setup", "groth16 setup failed", err)
	}
	c.setups.Add(1)

	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return nil, shared.NewInfraError("setup", "failed to serialize verifying key", err)
	}

	keys := &ProgramKeys{
		ProgramID:    programID,
		CCS:          ccs,
		ProvingKey:   pk,
		VerifyingKey: vk,
		VKBytes:      buf.Bytes(),
		VKHash:       crypto.Keccak256Hash(buf.Bytes()),
	}

	c.logger.Info("Cached program keys",
		zap.String("program_id", programID),
		zap.String("vk_hash", keys.VKHash.Hex()))

	return keys, nil
}

// The circuit shape does not depend on the program, so it is compiled once.
func (c *KeyCache) constraintSystem() (constraint.ConstraintSystem, error) {
	c.ccsOnce.Do(func() {
		var circuit executionCircuit
		c.ccs, c.ccsErr = frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	})
	return c.ccs, c.ccsErr
}
