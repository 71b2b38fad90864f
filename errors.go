// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ioreactor

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrUnsupportedPlatform is returned by [New] on platforms without a
	// supported readiness facility.
	ErrUnsupportedPlatform = errors.New("ioreactor: platform not supported")

	// ErrInvalidOption is returned by [New] when an option value is out of
	// range.
	ErrInvalidOption = errors.New("ioreactor: invalid option")

	// ErrInvariant is matched by every [*InvariantError], via [errors.Is].
	ErrInvariant = errors.New("ioreactor: invariant violated")
)

// InvariantError is the panic value raised when the reactor detects a
// programming error in its caller, or an unexpected kernel failure. There is
// no safe degraded mode, and it is not meant to be recovered outside tests.
type InvariantError struct {
	// Cause is the underlying kernel error, if any.
	Cause error
	// Op is the reactor operation, e.g. "add" or "wait".
	Op string
	// Reason describes the violation.
	Reason string
	// FD is the descriptor involved, or -1.
	FD int
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	var s string
	if e.FD >= 0 {
		s = fmt.Sprintf("ioreactor: %s fd %d: %s", e.Op, e.FD, e.Reason)
	} else {
		s = fmt.Sprintf("ioreactor: %s: %s", e.Op, e.Reason)
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

// Unwrap returns the underlying cause for use with [errors.Is] and [errors.As].
func (e *InvariantError) Unwrap() error {
	return e.Cause
}

// Is reports true for [ErrInvariant].
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariant
}
