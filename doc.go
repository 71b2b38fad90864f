// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package ioreactor implements the I/O readiness reactor at the bottom of a
// cooperative coroutine runtime.
//
// Many coroutines may block on file descriptor readiness without consuming
// OS threads: all interest is multiplexed onto a single kernel notification
// object (epoll on Linux, kqueue on the BSD family), and exactly the
// coroutines whose condition became true are resumed.
//
// # Architecture
//
// A [Reactor] owns a fixed-size descriptor table, indexed by descriptor
// number. Each slot holds the coroutine waiting to read, the coroutine
// waiting to write, and a cache of what is currently registered with the
// kernel. Interest changes made by [Reactor.Add], [Reactor.Remove] and
// [Reactor.Clean] only mutate the table and link the descriptor onto an
// intrusive pending-change list; they make no syscalls, except Clean, which
// must drop the kernel registration before the descriptor number is reused.
//
// [Reactor.Wait] is the only place that talks to the kernel and the only
// place that calls [Scheduler.Resume]. Each call:
//  1. flushes the pending-change list to the kernel, in bounded batches
//  2. blocks for events, for up to the given timeout
//  3. folds events into per-descriptor masks and resumes the waiters
//
// # Coroutine handles
//
// The reactor never owns coroutines. Handles are any comparable type, the
// zero value meaning "no waiter", and are only compared for identity and
// passed back to the [Scheduler]. A scheduler must clear (see
// [Reactor.Remove]) every registration a coroutine holds before destroying
// it.
//
// # Thread Safety
//
// None. A Reactor is strictly single-threaded: it must only be used from the
// logical thread that runs the scheduler, and it never starts goroutines.
//
// # Invariant violations
//
// Registering two coroutines for the same descriptor and direction, cleaning
// a descriptor that still has waiters, or a failing kernel call (other than
// an interrupted wait) indicate a scheduler bug. These panic with an
// [*InvariantError], which is not meant to be recovered.
//
// # Process duplication
//
// Kernel notification objects are not safely inherited across fork. A child
// process must call [Reactor.Forked] before any other reactor call, and
// before opening or closing any descriptor, which rebuilds the kernel-side
// registration from the inherited table.
//
// # Usage
//
//	r, err := ioreactor.New[*Coroutine](sched)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	// in a coroutine, before suspending
//	r.Add(fd, ioreactor.Readable)
//
//	// in the scheduler, when nothing is runnable
//	if !r.Wait(ioreactor.Forever) {
//	    // nothing became ready
//	}
package ioreactor
