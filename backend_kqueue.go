// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package ioreactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// fallbackMaxDescriptors is used when RLIMIT_NOFILE is unbounded, which
// darwin reports for the hard limit and, in some configurations, the soft
// one. It matches OPEN_MAX.
const fallbackMaxDescriptors = 10240

// kqueueBackend implements backend using kqueue. Each direction is a
// separate filter, so a change expands to at most two kevents.
type kqueueBackend struct {
	changes []unix.Kevent_t
	buf     []unix.Kevent_t
	kq      int
}

func newPlatformBackend() (backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("ioreactor: kqueue: %w", err)
	}
	unix.CloseOnExec(kq)
	return &kqueueBackend{kq: kq}, nil
}

func maxDescriptors() (int, error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, fmt.Errorf("ioreactor: getrlimit: %w", err)
	}
	return clampDescriptors(int64(rlim.Cur), fallbackMaxDescriptors), nil
}

func (b *kqueueBackend) translate(changes []change) []unix.Kevent_t {
	kevs := b.changes[:0]
	for _, c := range changes {
		kevs = appendKevent(kevs, c, Readable, unix.EVFILT_READ)
		kevs = appendKevent(kevs, c, Writable, unix.EVFILT_WRITE)
	}
	b.changes = kevs
	return kevs
}

func appendKevent(kevs []unix.Kevent_t, c change, dir Events, filter int) []unix.Kevent_t {
	var flags int
	switch c.filter(dir) {
	case filterAdd:
		flags = unix.EV_ADD
	case filterDelete:
		flags = unix.EV_DELETE
	default:
		return kevs
	}
	var kev unix.Kevent_t
	unix.SetKevent(&kev, c.fd, filter, flags)
	return append(kevs, kev)
}

func (b *kqueueBackend) apply(changes []change) error {
	kevs := b.translate(changes)
	if len(kevs) == 0 {
		return nil
	}
	if _, err := unix.Kevent(b.kq, kevs, nil, nil); err != nil {
		return fmt.Errorf("kevent changes: %w", err)
	}
	return nil
}

func (b *kqueueBackend) wait(changes []change, events []readiness, timeout time.Duration) (int, error) {
	kevs := b.translate(changes)

	if cap(b.buf) < len(events) {
		b.buf = make([]unix.Kevent_t, len(events))
	}
	buf := b.buf[:len(events)]

	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}

	n, err := unix.Kevent(b.kq, kevs, buf, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, errInterrupted
		}
		return 0, fmt.Errorf("kevent wait: %w", err)
	}

	var count int
	for i := 0; i < n; i++ {
		kev := &buf[i]
		if kev.Flags&unix.EV_ERROR != 0 {
			// change failures are reported in-band when there is an event list
			if kev.Data != 0 {
				return 0, fmt.Errorf("kevent change fd %d: %w", kev.Ident, unix.Errno(kev.Data))
			}
			continue
		}
		var dir Events
		switch kev.Filter {
		case unix.EVFILT_READ:
			dir = Readable
		case unix.EVFILT_WRITE:
			dir = Writable
		}
		events[count] = readiness{fd: int(kev.Ident), events: filterEvents(dir, kev.Flags&unix.EV_EOF != 0)}
		count++
	}
	return count, nil
}

func (b *kqueueBackend) close() error {
	return unix.Close(b.kq)
}

// forked does nothing: a kqueue is not inherited by fork, so the saved
// descriptor number may already belong to something the child opened.
func (b *kqueueBackend) forked() error {
	return nil
}
