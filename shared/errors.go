package shared

import (
	"errors"
	"fmt"
)

// ErrorKind tells a caller what to do with a failure: fix the request,
// give up on a missing resource, retry an infrastructure fault, or accept a
// policy rejection as final.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInput
	KindNotFound
	KindInfra
	KindPolicy
)

func (k ErrorKind) String() string {
	switch k {
	case KindInput:
		return "input_error"
	case KindNotFound:
		return "not_found"
	case KindInfra:
		return "infra_error"
	case KindPolicy:
		return "policy_error"
	default:
		return "internal_error"
	}
}

// Retryable reports whether repeating the same call may succeed
func (k ErrorKind) Retryable() bool {
	return k == KindInfra
}

// AttestError is the base error type for all service errors
type AttestError struct {
	Kind    ErrorKind `json:"kind"`
	Op      string    `json:"op,omitempty"`
	Message string    `json:"message"`
	TxHash  string    `json:"tx_hash,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface
func (e *AttestError) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.TxHash != "" {
		msg = fmt.Sprintf("%s (tx %s)", msg, e.TxHash)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap implements the error unwrapping interface
func (e *AttestError) Unwrap() error {
	return e.Cause
}

// NewInputError reports a malformed or incomplete request
func NewInputError(op string, format string, args ...interface{}) *AttestError {
	return &AttestError{Kind: KindInput, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports an unknown program, proof or session
func NewNotFoundError(op string, format string, args ...interface{}) *AttestError {
	return &AttestError{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewInfraError reports an RPC, HTTP or prover fault
func NewInfraError(op string, message string, cause error) *AttestError {
	return &AttestError{Kind: KindInfra, Op: op, Message: message, Cause: cause}
}

// NewPolicyError reports an expected rejection
func NewPolicyError(op string, format string, args ...interface{}) *AttestError {
	return &AttestError{Kind: KindPolicy, Op: op, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches the underlying error
func (e *AttestError) WithCause(cause error) *AttestError {
	e.Cause = cause
	return e
}

// WithTxHash records the submitted transaction for manual follow-up
func (e *AttestError) WithTxHash(txHash string) *AttestError {
	e.TxHash = txHash
	return e
}

// KindOf returns the kind of the first AttestError in the chain
func KindOf(err error) ErrorKind {
	var ae *AttestError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// TxHashOf returns the transaction hash attached to err, if any
func TxHashOf(err error) string {
	var ae *AttestError
	if errors.As(err, &ae) {
		return ae.TxHash
	}
	return ""
}

// MessageOf returns the bare message of an AttestError, or err.Error()
func MessageOf(err error) string {
	var ae *AttestError
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}
