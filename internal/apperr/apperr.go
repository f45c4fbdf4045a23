// Package apperr defines the small, closed set of named failure kinds the
// core surfaces to callers (spec §7). Every failure is a typed *Error
// carrying a Kind and a human-readable message, replacing
// exceptions-for-control-flow in the scoring path (Design Notes §9).
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of failure kinds from §7.
type Kind string

const (
	InvalidParameter        Kind = "invalid-parameter"
	NotFound                Kind = "not-found"
	Expired                 Kind = "expired"
	AlreadyCompleted        Kind = "already-completed"
	InsufficientCoverage    Kind = "insufficient-coverage"
	PoolInsufficient        Kind = "pool-insufficient"
	ConstraintUnsatisfiable Kind = "constraint-unsatisfiable"
	DegradedScoring         Kind = "degraded-scoring"
	Uncalibrated            Kind = "uncalibrated"
)

// Error is the core's single error type. Kind is stable and intended for
// programmatic dispatch (e.g. the transport adapter maps Kind to an HTTP
// status code in one switch); Message is for humans.
type Error struct {
	Kind    Kind
	Message string
	Err     error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, apperr.New(kind, "")) to match on Kind alone,
// regardless of Message or wrapped cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New builds an *Error with no wrapped cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error that wraps cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error. The
// second return is false for any other error, including nil.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err's Kind equals kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
