// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ioreactor

import (
	"fmt"

	"github.com/joeycumines/logiface"
)

// Scheduler is the coroutine runtime a [Reactor] parks waiters for.
//
// H is an opaque coroutine handle, its zero value meaning "no coroutine".
// The reactor only compares handles and passes them back to Resume, it never
// owns them.
type Scheduler[H comparable] interface {
	// Running returns the coroutine currently executing, i.e. the one that
	// is calling [Reactor.Add].
	Running() H

	// Resume makes h runnable again, reporting the events that fired. It is
	// called synchronously from [Reactor.Wait], and may re-enter the
	// reactor's registration methods.
	Resume(h H, events Events)
}

// Reactor multiplexes coroutine descriptor waits onto a single kernel
// readiness object. See the package documentation for the model.
//
// A Reactor is not safe for concurrent use.
type Reactor[H comparable] struct {
	sched      Scheduler[H]
	logger     *logiface.Logger[logiface.Event]
	newBackend func() (backend, error)
	backend    backend
	changes    []change
	events     []readiness
	table      table[H]
	closed     bool
}

// New initializes a Reactor, allocating the descriptor table and creating
// the kernel readiness object.
//
// The table is sized by RLIMIT_NOFILE, unless [WithMaxDescriptors] is
// given. An error is returned if the limit cannot be read, an option is
// invalid, or the kernel object cannot be created, in which case no other
// operation may be attempted.
func New[H comparable](sched Scheduler[H], opts ...Option) (*Reactor[H], error) {
	if sched == nil {
		return nil, fmt.Errorf("%w: nil scheduler", ErrInvalidOption)
	}

	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	size := cfg.maxDescriptors
	if size == 0 {
		if size, err = maxDescriptors(); err != nil {
			return nil, err
		}
	}

	be, err := cfg.newBackend()
	if err != nil {
		return nil, err
	}

	r := &Reactor[H]{
		sched:      sched,
		logger:     cfg.logger,
		newBackend: cfg.newBackend,
		backend:    be,
		changes:    make([]change, 0, cfg.batchSize),
		events:     make([]readiness, cfg.eventBufferSize),
		table:      newTable[H](size),
	}

	r.logger.Debug().
		Int("max_descriptors", size).
		Int("batch_size", cfg.batchSize).
		Int("event_buffer_size", cfg.eventBufferSize).
		Log("ioreactor: initialized")

	return r, nil
}

// Add registers the running coroutine as waiting for each direction in
// dirs, which must be a non-empty subset of [Directions].
//
// Each direction may have only one waiter per descriptor: registering a
// second one, before the first is removed or resumed, panics with an
// [*InvariantError]. A reader and a writer may wait on the same descriptor
// independently, and may be the same coroutine.
//
// No syscall is made, the change is applied by the next [Reactor.Wait].
func (r *Reactor[H]) Add(fd int, dirs Events) {
	const op = "add"
	r.checkOpen(op)
	r.checkDirections(op, fd, dirs)

	var zero H
	h := r.sched.Running()
	if h == zero {
		r.fatal(&InvariantError{Op: op, FD: fd, Reason: "no coroutine is running"})
	}

	s := &r.table.slots[fd]
	if (dirs&Readable != 0 && s.reader != zero) || (dirs&Writable != 0 && s.writer != zero) {
		r.fatal(&InvariantError{
			Op:     op,
			FD:     fd,
			Reason: fmt.Sprintf("multiple coroutines waiting on one descriptor/direction (%s)", dirs),
		})
	}

	if dirs&Readable != 0 {
		s.reader = h
	}
	if dirs&Writable != 0 {
		s.writer = h
	}
	r.table.link(fd)
}

// Remove clears the waiter for each direction in dirs, whoever it is. It is
// how a coroutine cancels a wait, and a scheduler must use it to drop every
// registration a coroutine holds before destroying it.
//
// No syscall is made, the change is applied by the next [Reactor.Wait].
func (r *Reactor[H]) Remove(fd int, dirs Events) {
	const op = "remove"
	r.checkOpen(op)
	r.checkDirections(op, fd, dirs)

	var zero H
	s := &r.table.slots[fd]
	if dirs&Readable != 0 {
		s.reader = zero
	}
	if dirs&Writable != 0 {
		s.writer = zero
	}
	r.table.link(fd)
}

// Clean detaches fd from the kernel object and resets its slot. It must be
// called before a registered descriptor is closed, since descriptor numbers
// are reused.
//
// Panics with an [*InvariantError] if fd still has a waiter.
func (r *Reactor[H]) Clean(fd int) {
	const op = "clean"
	r.checkOpen(op)
	r.checkDescriptor(op, fd)

	var zero H
	s := &r.table.slots[fd]
	if s.reader != zero || s.writer != zero {
		r.fatal(&InvariantError{Op: op, FD: fd, Reason: "descriptor still has waiters"})
	}

	if s.active != 0 {
		r.submit(op, []change{{fd: fd, from: s.active}})
	}

	r.table.reset(fd)
	r.table.link(fd)
}

// Waiters returns the coroutines currently waiting to read and write fd,
// zero values meaning no waiter.
func (r *Reactor[H]) Waiters(fd int) (reader, writer H) {
	r.checkDescriptor("waiters", fd)
	s := &r.table.slots[fd]
	return s.reader, s.writer
}

// Len returns the size of the descriptor table, i.e. one more than the
// largest descriptor that may be registered.
func (r *Reactor[H]) Len() int {
	return len(r.table.slots)
}

// Close releases the kernel object. It is idempotent, but no other method
// may be called afterward.
func (r *Reactor[H]) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.logger.Debug().Log("ioreactor: closed")
	return r.backend.close()
}

// submit applies a batch of changes immediately.
func (r *Reactor[H]) submit(op string, batch []change) {
	if err := r.backend.apply(batch); err != nil {
		r.fatal(&InvariantError{
			Op:     op,
			FD:     -1,
			Reason: "kernel rejected registration changes",
			Cause:  err,
		})
	}
}

// enqueue appends c to batch, first submitting the batch if it is full.
func (r *Reactor[H]) enqueue(op string, batch []change, c change) []change {
	if len(batch) == cap(batch) {
		r.submit(op, batch)
		batch = batch[:0]
	}
	return append(batch, c)
}

func (r *Reactor[H]) checkOpen(op string) {
	if r.closed {
		r.fatal(&InvariantError{Op: op, FD: -1, Reason: "reactor is closed"})
	}
}

func (r *Reactor[H]) checkDescriptor(op string, fd int) {
	if fd < 0 || fd >= len(r.table.slots) {
		r.fatal(&InvariantError{
			Op:     op,
			FD:     fd,
			Reason: fmt.Sprintf("descriptor out of range [0, %d)", len(r.table.slots)),
		})
	}
}

func (r *Reactor[H]) checkDirections(op string, fd int, dirs Events) {
	r.checkDescriptor(op, fd)
	if dirs == 0 || dirs&^Directions != 0 {
		r.fatal(&InvariantError{
			Op:     op,
			FD:     fd,
			Reason: fmt.Sprintf("invalid directions %s", dirs),
		})
	}
}

// fatal reports an invariant violation, and does not return.
func (r *Reactor[H]) fatal(err *InvariantError) {
	r.logger.Emerg().
		Str("op", err.Op).
		Int("fd", err.FD).
		Err(err).
		Log("ioreactor: invariant violated")
	panic(err)
}
