// Package nserr defines the core failure-kind taxonomy shared by every
// collective operation in the store. Every error kind must be reduced
// across the communicator so that either every rank observes the same
// kind or every rank observes success (§7 propagation policy).
package nserr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of core failure categories.
type Kind string

// Error kinds, per spec §7. These are categories, not Go type names.
const (
	ContainerIo             Kind = "ContainerIo"
	LayoutOverlap           Kind = "LayoutOverlap"
	ExtentShrink            Kind = "ExtentShrink"
	IndexIncoherent         Kind = "IndexIncoherent"
	PopulationPairForbidden Kind = "PopulationPairForbidden"
	InvariantViolation      Kind = "InvariantViolation"
	CommunicatorFailure     Kind = "CommunicatorFailure"
)

// Error is a structured, wrapped core error carrying a stable Kind so
// callers can branch on failure category with nserr.Is or errors.As, following
// the same wrapped-error shape as internal/utils.H5Error.
type Error struct {
	Kind    Kind
	Context string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Context)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Cause)
}

// Unwrap provides compatibility with errors.Unwrap / errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a new *Error with the given kind and context, wrapping cause.
// Returns nil if cause is nil, mirroring WrapError's "no error in, no error
// out" convenience.
func New(kind Kind, context string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Context: context, Cause: cause}
}

// exitCodes maps each Kind to the process exit code a CLI collaborator
// reports for it (spec §6.3: "0 success; non-zero indicates a core
// failure kind... exact numeric mapping is implementation-defined but
// must be stable within a release"). Code 1 is the generic/unmapped
// failure code, so it is never reused for a named Kind below.
var exitCodes = map[Kind]int{
	ContainerIo:             2,
	LayoutOverlap:           3,
	ExtentShrink:            4,
	IndexIncoherent:         5,
	PopulationPairForbidden: 6,
	InvariantViolation:      7,
	CommunicatorFailure:     8,
}

// ExitCode returns the stable process exit code for err: 0 for a nil
// error, the Kind-specific code of the first *Error found along err's
// Unwrap chain, or 1 for any other non-nil error (a failure the core
// itself did not categorize).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if ae, ok := e.(*Error); ok {
			if code, ok := exitCodes[ae.Kind]; ok {
				return code
			}
		}
	}
	return 1
}

// Is reports whether err carries the given Kind, walking the wrap chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Cause
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
