// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ioreactor

// Forked rebuilds the kernel readiness object after a process duplication.
// It must be called in the child, before any other method.
//
// The child inherits the descriptor table, including which directions are
// registered with the kernel, but the kernel object is either shared with
// the parent (epoll) or not inherited at all (kqueue). A shared one is
// closed (errors are ignored, as some kernels refuse), a new one is
// created, and every registered direction is replayed into it. Waiters and
// pending changes are kept, and are reconciled by the next [Reactor.Wait].
//
// Forked must run before the child opens or closes any descriptor: the
// inherited epoll descriptor is closed by number.
//
// An error is returned if the new kernel object cannot be created, after
// which the reactor must not be used.
func (r *Reactor[H]) Forked() error {
	const op = "forked"
	r.checkOpen(op)

	if err := r.backend.forked(); err != nil {
		r.logger.Debug().
			Err(err).
			Log("ioreactor: ignoring error closing inherited kernel object")
	}

	be, err := r.newBackend()
	if err != nil {
		r.closed = true
		return err
	}
	r.backend = be

	var replayed int
	batch := r.changes[:0]
	for fd := range r.table.slots {
		active := r.table.slots[fd].active
		if active == 0 {
			continue
		}
		batch = r.enqueue(op, batch, change{fd: fd, to: active})
		replayed++
	}
	if len(batch) != 0 {
		r.submit(op, batch)
	}

	r.logger.Debug().
		Int("replayed", replayed).
		Log("ioreactor: rebuilt kernel object after fork")

	return nil
}
