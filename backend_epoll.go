// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package ioreactor

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/sys/unix"
)

// fallbackMaxDescriptors is used when RLIMIT_NOFILE is unbounded, it matches
// the default fs.nr_open.
const fallbackMaxDescriptors = 1 << 20

// epollBackend implements backend using epoll, level-triggered.
type epollBackend struct {
	buf  []unix.EpollEvent
	epfd int
}

func newPlatformBackend() (backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("ioreactor: epoll create: %w", err)
	}
	return &epollBackend{epfd: epfd}, nil
}

func maxDescriptors() (int, error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, fmt.Errorf("ioreactor: getrlimit: %w", err)
	}
	return clampDescriptors(int64(rlim.Cur), fallbackMaxDescriptors), nil
}

func (b *epollBackend) apply(changes []change) error {
	for _, c := range changes {
		var (
			op   int
			name string
		)
		switch {
		case c.from == 0:
			op, name = unix.EPOLL_CTL_ADD, "add"
		case c.to == 0:
			op, name = unix.EPOLL_CTL_DEL, "del"
		default:
			op, name = unix.EPOLL_CTL_MOD, "mod"
		}
		ev := unix.EpollEvent{
			Events: eventsToEpoll(c.to),
			Fd:     int32(c.fd),
		}
		if err := unix.EpollCtl(b.epfd, op, c.fd, &ev); err != nil {
			return fmt.Errorf("epoll ctl %s fd %d: %w", name, c.fd, err)
		}
	}
	return nil
}

func (b *epollBackend) wait(changes []change, events []readiness, timeout time.Duration) (int, error) {
	if err := b.apply(changes); err != nil {
		return 0, err
	}

	if cap(b.buf) < len(events) {
		b.buf = make([]unix.EpollEvent, len(events))
	}
	buf := b.buf[:len(events)]

	n, err := unix.EpollWait(b.epfd, buf, timeoutMillis(timeout))
	if err != nil {
		if err == unix.EINTR {
			return 0, errInterrupted
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	for i := 0; i < n; i++ {
		events[i] = readiness{
			fd:     int(buf[i].Fd),
			events: epollToEvents(buf[i].Events),
		}
	}
	return n, nil
}

func (b *epollBackend) close() error {
	return unix.Close(b.epfd)
}

// forked closes the inherited epoll descriptor, which still shares its
// interest list with the parent.
func (b *epollBackend) forked() error {
	return b.close()
}

// timeoutMillis converts a timeout to epoll_wait's argument, rounding
// positive values up so that short timeouts never degrade into a poll.
func timeoutMillis(timeout time.Duration) int {
	switch {
	case timeout < 0:
		return -1
	case timeout == 0:
		return 0
	}
	ms := timeout / time.Millisecond
	if timeout%time.Millisecond != 0 {
		ms++
	}
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}

// eventsToEpoll converts Events to epoll event flags.
func eventsToEpoll(events Events) uint32 {
	var epollEvents uint32
	if events&Readable != 0 {
		epollEvents |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if events&Writable != 0 {
		epollEvents |= unix.EPOLLOUT
	}
	return epollEvents
}

// epollToEvents converts epoll event flags to Events.
func epollToEvents(epollEvents uint32) Events {
	var events Events
	if epollEvents&unix.EPOLLIN != 0 {
		events |= Readable
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= Writable
	}
	if epollEvents&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		events |= Error
	}
	return events
}
