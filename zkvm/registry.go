package zkvm

import (
	"sync"
	"time"

	"zk-attestation/shared"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Program is a registered guest binary
type Program struct {
	ID           string
	ELF          []byte
	Digest       [32]byte // keccak256 of the ELF bytes
	RegisteredAt time.Time
}

// Registry stores guest programs by generated id
type Registry struct {
	mu       sync.RWMutex
	programs map[string]*Program
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		programs: make(map[string]*Program),
		now:      time.Now,
	}
}

// Register stores a copy of elf under a fresh program id
func (r *Registry) Register(elf []byte) (*Program, error) {
	if len(elf) == 0 {
		return nil, shared.NewInputError("register_elf", "no ELF bytes supplied")
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, shared.NewInfraError("register_elf", "failed to generate program id", err)
	}

	program := &Program{
		ID:           id.String(),
		ELF:          append([]byte(nil), elf...),
		RegisteredAt: r.now().UTC(),
	}
	copy(program.Digest[:], crypto.Keccak256(elf))

	r.mu.Lock()
	r.programs[program.ID] = program
	r.mu.Unlock()

	return program, nil
}

// Get returns the program registered under id
func (r *Registry) Get(id string) (*Program, error) {
	r.mu.RLock()
	program, ok := r.programs[id]
	r.mu.RUnlock()

	if !ok {
		return nil, shared.NewNotFoundError("get_program", "program %s not registered", id)
	}
	return program, nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.programs)
}
