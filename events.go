// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ioreactor

import (
	"strings"
)

// Events is a set of readiness conditions.
//
// [Readable] and [Writable] are the directions a coroutine may wait on.
// Masks delivered to [Scheduler.Resume] may also carry [Error].
type Events uint32

const (
	// Readable indicates the descriptor is ready for reading.
	Readable Events = 1 << iota
	// Writable indicates the descriptor is ready for writing.
	Writable
	// Error indicates an error, hang-up or end-of-file condition. It is
	// delivered to every waiter on the descriptor.
	Error
)

// Directions is the set of events that may be passed to [Reactor.Add] and
// [Reactor.Remove].
const Directions = Readable | Writable

const allEvents = Readable | Writable | Error

// String returns the events as a "|" separated list, e.g. "readable|error".
func (e Events) String() string {
	if e == 0 {
		return "none"
	}
	var b strings.Builder
	for _, v := range [...]struct {
		bit  Events
		name string
	}{
		{Readable, "readable"},
		{Writable, "writable"},
		{Error, "error"},
	} {
		if e&v.bit == 0 {
			continue
		}
		if b.Len() != 0 {
			b.WriteByte('|')
		}
		b.WriteString(v.name)
	}
	if e&^allEvents != 0 {
		if b.Len() != 0 {
			b.WriteByte('|')
		}
		b.WriteString("unknown")
	}
	return b.String()
}
