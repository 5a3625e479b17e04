package zkvm

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	mimcfr "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/consensys/gnark/frontend"
	mimcstd "github.com/consensys/gnark/std/hash/mimc"
	"github.com/ethereum/go-ethereum/crypto"
)

// executionCircuit binds a program, its committed output and a hidden input.
// The prover shows knowledge of an input digest such that
// MiMC(program, inputHi, inputLo, output) equals the public commitment.
type executionCircuit struct {
	ProgramDigest frontend.Variable `gnark:",public"`
	OutputDigest  frontend.Variable `gnark:",public"`
	Commitment    frontend.Variable `gnark:",public"`

	InputHi frontend.Variable `gnark:",secret"`
	InputLo frontend.Variable `gnark:",secret"`
}

// Define implements the gnark Circuit interface.
func (c *executionCircuit) Define(api frontend.API) error {
	hasher, err := mimcstd.NewMiMC(api)
	if err != nil {
		return fmt.Errorf("failed to initialize MiMC hasher: %w", err)
	}

	hasher.Write(c.ProgramDigest)
	hasher.Write(c.InputHi)
	hasher.Write(c.InputLo)
	hasher.Write(c.OutputDigest)

	api.AssertIsEqual(hasher.Sum(), c.Commitment)
	return nil
}

// executionWitness is the off-circuit view of one execution
type executionWitness struct {
	programDigest fr.Element
	outputDigest  fr.Element
	commitment    fr.Element
	inputHi       fr.Element
	inputLo       fr.Element
}

func newExecutionWitness(program *Program, input, publicValues []byte) (*executionWitness, error) {
	inputHash := crypto.Keccak256(input)

	w := &executionWitness{
		programDigest: fieldElement(program.Digest[:]),
		outputDigest:  fieldElement(crypto.Keccak256(publicValues)),
		inputHi:       fieldElement(inputHash[:16]),
		inputLo:       fieldElement(inputHash[16:]),
	}

	commitment, err := mimcCommitment(w.programDigest, w.inputHi, w.inputLo, w.outputDigest)
	if err != nil {
		return nil, err
	}
	w.commitment = commitment
	return w, nil
}

func (w *executionWitness) assignment() *executionCircuit {
	return &executionCircuit{
		ProgramDigest: bigInt(w.programDigest),
		OutputDigest:  bigInt(w.outputDigest),
		Commitment:    bigInt(w.commitment),
		InputHi:       bigInt(w.inputHi),
		InputLo:       bigInt(w.inputLo),
	}
}

func publicAssignment(programDigest, outputDigest, commitment fr.Element) *executionCircuit {
	return &executionCircuit{
		ProgramDigest: bigInt(programDigest),
		OutputDigest:  bigInt(outputDigest),
		Commitment:    bigInt(commitment),
	}
}

// fieldElement reduces big-endian bytes into the BN254 scalar field
func fieldElement(b []byte) fr.Element {
	var elem fr.Element
	elem.SetBytes(b)
	return elem
}

func bigInt(e fr.Element) *big.Int {
	return e.BigInt(new(big.Int))
}

// mimcCommitment mirrors the in-circuit hash
func mimcCommitment(elems ...fr.Element) (fr.Element, error) {
	h := mimcfr.NewMiMC()
	for _, e := range elems {
		b := e.Bytes()
		if _, err := h.Write(b[:]); err != nil {
			return fr.Element{}, fmt.Errorf("failed to hash element: %w", err)
		}
	}

	sum := h.Sum(nil)
	if len(sum) != fr.Bytes {
		return fr.Element{}, fmt.Errorf("unexpected mimc hash size: %d", len(sum))
	}
	return fieldElement(sum), nil
}
