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

// Forever may be passed to [Reactor.Wait] to block until an event fires.
// Any negative duration has the same effect.
const Forever time.Duration = -1

// Wait pushes pending interest changes to the kernel, blocks for up to
// timeout for readiness events, and resumes the coroutines whose condition
// fired. A zero timeout polls, a negative one (see [Forever]) blocks
// indefinitely.
//
// Within a single call, a descriptor's reader is resumed with at most
// [Readable]|[Error] and its writer with at most [Writable]|[Error]. If both
// directions are held by the same coroutine, it is resumed once, with
// everything that fired. Resumed directions are cleared: a coroutine must
// call [Reactor.Add] again to keep waiting. A coroutine waiting on several
// descriptors may be resumed once per descriptor.
//
// The reader is resumed before the writer. A writer that the reader's
// resumption removed, or replaced, is not resumed by the same call.
//
// Wait returns true if at least one coroutine was resumed, and false if it
// timed out with nothing to report. Signal interruptions are retried.
func (r *Reactor[H]) Wait(timeout time.Duration) bool {
	r.checkOpen("wait")
	batch := r.flush()
	n := r.block(batch, timeout)
	r.collect(n)
	resumed := r.dispatch()
	r.logger.Trace().
		Int("events", n).
		Int("resumed", resumed).
		Log("ioreactor: dispatched")
	return resumed != 0
}

// flush drains the pending-change list, submitting every full batch of
// changes, and returns the final, partial batch.
func (r *Reactor[H]) flush() []change {
	batch := r.changes[:0]
	for {
		fd, ok := r.table.pop()
		if !ok {
			break
		}
		s := &r.table.slots[fd]
		s.firing = 0
		want := s.desired()
		if want == s.active {
			continue
		}
		batch = r.enqueue("wait", batch, change{fd: fd, from: s.active, to: want})
		s.active = want
	}
	return batch
}

// block submits batch and waits for events, returning the number collected
// into r.events.
func (r *Reactor[H]) block(batch []change, timeout time.Duration) int {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		n, err := r.backend.wait(batch, r.events, timeout)
		if err == nil {
			return n
		}
		if !errors.Is(err, errInterrupted) {
			r.fatal(&InvariantError{Op: "wait", FD: -1, Reason: "kernel wait failed", Cause: err})
		}
		// the changes were applied before the interruption
		batch = batch[:0]
		if timeout > 0 {
			if timeout = time.Until(deadline); timeout < 0 {
				timeout = 0
			}
		}
	}
}

// collect folds the first n events into the per-descriptor firing masks,
// linking each descriptor for dispatch.
func (r *Reactor[H]) collect(n int) {
	for _, ev := range r.events[:n] {
		if ev.fd < 0 || ev.fd >= len(r.table.slots) {
			continue
		}
		r.table.slots[ev.fd].firing |= ev.events
		r.table.link(ev.fd)
	}
}

// dispatch walks the descriptors linked by collect, resuming waiters. It
// returns the number of Resume calls made.
//
// Slot state is settled before each Resume, which may re-enter Add, Remove or
// Clean. The reader is resumed first, so the writer is only resumed if it is
// still registered afterward. Descriptors left with a registration that
// differs from what the kernel has are linked again, so the next flush
// applies the difference.
func (r *Reactor[H]) dispatch() (resumed int) {
	var zero H
	for cursor := r.table.detach(); cursor != listEnd; {
		var fd int
		fd, cursor = r.table.unlinkNext(cursor)
		s := &r.table.slots[fd]

		firing := s.firing
		s.firing = 0
		// earlier resumptions in this pass may have changed the waiters
		r.settle(fd)
		if firing == 0 {
			continue
		}

		reader, writer := s.reader, s.writer
		if reader != zero && reader == writer {
			s.reader, s.writer = zero, zero
			r.settle(fd)
			r.sched.Resume(reader, firing)
			resumed++
			continue
		}

		if events := firing & (Readable | Error); reader != zero && events != 0 {
			s.reader = zero
			r.settle(fd)
			r.sched.Resume(reader, events)
			resumed++
		}

		// the reader may have removed or replaced the writer
		if events := firing & (Writable | Error); writer != zero && events != 0 && s.writer == writer {
			s.writer = zero
			r.settle(fd)
			r.sched.Resume(writer, events)
			resumed++
		}
	}
	return resumed
}

// settle links fd if its desired registration differs from the kernel's.
func (r *Reactor[H]) settle(fd int) {
	if s := &r.table.slots[fd]; s.desired() != s.active {
		r.table.link(fd)
	}
}
