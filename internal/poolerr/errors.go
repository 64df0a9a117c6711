// Package poolerr defines the pool coordinator's error-kind taxonomy.
//
// Errors are classified by kind, not by distinct Go types, so that callers
// across Store, Verifier, Validator, Coordinator and Stratum layers can
// dispatch on a single small enum regardless of which component raised the
// error.
package poolerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for JSON-RPC code mapping and session policy.
type Kind int

const (
	// Other is the zero value: unexpected, logged and propagated.
	Other Kind = iota
	Database
	ShareValidation
	StratumProtocol
	MinerNotFound
	DuplicateShare
	InvalidProof
	InsufficientDifficulty
	JobNotFound
	Serialization
	WebSocket
)

func (k Kind) String() string {
	switch k {
	case Database:
		return "Database"
	case ShareValidation:
		return "ShareValidation"
	case StratumProtocol:
		return "StratumProtocol"
	case MinerNotFound:
		return "MinerNotFound"
	case DuplicateShare:
		return "DuplicateShare"
	case InvalidProof:
		return "InvalidProof"
	case InsufficientDifficulty:
		return "InsufficientDifficulty"
	case JobNotFound:
		return "JobNotFound"
	case Serialization:
		return "Serialization"
	case WebSocket:
		return "WebSocket"
	default:
		return "Other"
	}
}

// Error is a kinded error carrying a message and optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a kinded error with a message.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a kinded error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying cause.
func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to Other if err is nil or
// does not carry a kind.
func KindOf(err error) Kind {
	if err == nil {
		return Other
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Other
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// JSONRPCCode maps a Kind to the wire error code from the Stratum protocol.
func JSONRPCCode(kind Kind) int {
	switch kind {
	case StratumProtocol:
		return -32600
	case Serialization:
		return -32600
	default:
		return -32603
	}
}
