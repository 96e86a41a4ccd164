// Package vgerrors defines the error taxonomy used across the PRG mapper
// and genotyper: which failures are fatal at build/load time, which are
// per-read data problems that get counted and dropped, and which are
// data-level outcomes (never thrown, just reflected in the output).
package vgerrors

import (
	"github.com/pkg/errors"
)

// Kind classifies an error so that main() can pick the right process exit
// code without string-matching messages.
type Kind int

const (
	// Unknown is the zero Kind; never constructed directly by this package.
	Unknown Kind = iota
	// InvalidPRG marks structural errors in the PRG integer stream. Fatal at
	// build time.
	InvalidPRG
	// CorruptedIndex marks an FM-index whose persisted rank/support
	// structures don't match its BWT. Fatal at load time.
	CorruptedIndex
	// BadRead marks a FASTQ record with characters outside {A,C,G,T,N} or an
	// empty sequence. Recovered locally: the read is counted and dropped.
	BadRead
	// InsufficientCoverage marks a bubble with zero usable coverage. Not an
	// exception in practice (callers should prefer recording a NULL
	// genotype), but kept here so it can be surfaced uniformly where needed.
	InsufficientCoverage
	// NotEnoughData marks a GCP calibration pass that could not gather at
	// least two confidence values.
	NotEnoughData
	// InternalInvariant marks an impossible state in the search or genotyping
	// state machines (e.g. exiting a site never entered). Always fatal.
	InternalInvariant
)

func (k Kind) String() string {
	switch k {
	case InvalidPRG:
		return "InvalidPRG"
	case CorruptedIndex:
		return "CorruptedIndex"
	case BadRead:
		return "BadRead"
	case InsufficientCoverage:
		return "InsufficientCoverage"
	case NotEnoughData:
		return "NotEnoughData"
	case InternalInvariant:
		return "InternalInvariant"
	default:
		return "Unknown"
	}
}

// Error is a taxonomy-tagged error. Wrap a lower-level cause with E to keep
// both the Kind and the original error accessible via errors.Cause.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.cause.Error()
}

// Cause lets github.com/pkg/errors.Cause unwrap to the underlying error.
func (e *Error) Cause() error { return e.cause }

// E constructs a Kind-tagged error, wrapping cause with a message via
// pkg/errors so the call site context is preserved in the error chain.
func E(kind Kind, msg string, cause error) error {
	var wrapped error
	if cause != nil {
		wrapped = errors.Wrap(cause, msg)
	} else {
		wrapped = errors.New(msg)
	}
	return &Error{Kind: kind, cause: wrapped}
}

// KindOf returns the Kind tag of err, or Unknown if err was not produced by
// E (or wraps something that wasn't). Unwrapping proceeds one cause at a
// time: errors.Cause would jump straight past the tagged error to the
// innermost cause.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		causer, ok := err.(interface{ Cause() error })
		if !ok {
			return Unknown
		}
		err = causer.Cause()
	}
	return Unknown
}

// ExitCode maps a Kind to its process exit code.
func ExitCode(kind Kind) int {
	switch kind {
	case InvalidPRG:
		return 2
	case NotEnoughData:
		return 3
	case InternalInvariant:
		return 4
	default:
		return 1
	}
}
