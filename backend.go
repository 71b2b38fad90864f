// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ioreactor

import (
	"errors"
	"time"
)

// errInterrupted is returned by backend.wait when the blocking call was
// interrupted by a signal. Changes passed to that call have been applied.
var errInterrupted = errors.New("ioreactor: interrupted")

// change moves the kernel registration for fd from one set of directions
// to another. An empty from means the descriptor is not registered, an empty
// to means it must be unregistered.
type change struct {
	fd   int
	from Events
	to   Events
}

// filterAction is what a per-direction kernel filter needs, to apply a
// change.
type filterAction uint8

const (
	filterKeep filterAction = iota
	filterAdd
	filterDelete
)

// filter reports how the filter for dir must change, for backends
// that register each direction separately (kqueue).
func (c change) filter(dir Events) filterAction {
	switch {
	case c.to&dir != 0 && c.from&dir == 0:
		return filterAdd
	case c.to&dir == 0 && c.from&dir != 0:
		return filterDelete
	default:
		return filterKeep
	}
}

// filterEvents translates a per-direction filter event, eof meaning the
// kernel flagged end-of-file or an error on the descriptor.
func filterEvents(dir Events, eof bool) Events {
	if eof {
		dir |= Error
	}
	return dir
}

// readiness is a single kernel event, translated. Backends may report more
// than one per descriptor.
type readiness struct {
	fd     int
	events Events
}

// backend is the kernel readiness facility.
type backend interface {
	// apply submits changes, without waiting for events.
	apply(changes []change) error

	// wait submits changes then blocks for up to timeout (negative meaning
	// forever) for events, filling events and returning the count.
	wait(changes []change, events []readiness, timeout time.Duration) (int, error)

	// close releases the kernel object.
	close() error

	// forked releases the kernel object inherited by a child process. It
	// must not touch a descriptor the child does not actually inherit.
	forked() error
}

// clampDescriptors maps a soft descriptor limit onto a table size, using
// fallback when the limit is reported as unbounded.
func clampDescriptors(limit int64, fallback int) int {
	if limit < 0 || limit > maxTableSize {
		return fallback
	}
	return int(limit)
}
