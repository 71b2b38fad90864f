// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ioreactor

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/require"
)

// coroutine is the handle type used by tests, compared by pointer.
type coroutine struct {
	name string
}

func (c *coroutine) String() string {
	if c == nil {
		return "<nil>"
	}
	return c.name
}

type resumption struct {
	h      *coroutine
	events Events
}

// testScheduler records resumptions, optionally running a callback inline.
type testScheduler struct {
	running  *coroutine
	resumed  []resumption
	onResume func(h *coroutine, events Events)
}

func (s *testScheduler) Running() *coroutine { return s.running }

func (s *testScheduler) Resume(h *coroutine, events Events) {
	s.resumed = append(s.resumed, resumption{h, events})
	if s.onResume != nil {
		s.onResume(h, events)
	}
}

// as runs fn with c as the running coroutine.
func (s *testScheduler) as(c *coroutine, fn func()) {
	prev := s.running
	s.running = c
	defer func() { s.running = prev }()
	fn()
}

func (s *testScheduler) take() []resumption {
	out := s.resumed
	s.resumed = nil
	return out
}

var errFakeInterrupted = fmt.Errorf("fake: %w", errInterrupted)

// fakeKernel creates fakeBackend instances, acting as the platform.
type fakeKernel struct {
	failCreate error
	backends   []*fakeBackend
	// ready is the level-triggered readiness of each descriptor, shared by
	// every backend, like real descriptors are.
	ready map[int]Events
}

func newFakeKernel() *fakeKernel {
	return &fakeKernel{ready: make(map[int]Events)}
}

func (k *fakeKernel) create() (backend, error) {
	if k.failCreate != nil {
		return nil, k.failCreate
	}
	b := &fakeBackend{
		kernel:     k,
		registered: make(map[int]Events),
	}
	k.backends = append(k.backends, b)
	return b, nil
}

func (k *fakeKernel) current() *fakeBackend {
	return k.backends[len(k.backends)-1]
}

// fakeBackend validates that changes describe the actual kernel state, and
// records every call.
type fakeBackend struct {
	kernel     *fakeKernel
	registered map[int]Events
	applies    [][]change
	waits      [][]change
	timeouts   []time.Duration
	interrupts int
	failApply  error
	failWait   error
	closed     bool

	// notInherited makes forked leave the object alone, like kqueue.
	notInherited bool
}

func (b *fakeBackend) apply(changes []change) error {
	if b.closed {
		return errors.New("fake: closed")
	}
	if b.failApply != nil {
		return b.failApply
	}
	b.applies = append(b.applies, slices.Clone(changes))
	return b.applyChanges(changes)
}

func (b *fakeBackend) applyChanges(changes []change) error {
	for _, c := range changes {
		if b.registered[c.fd] != c.from {
			return fmt.Errorf("fake: fd %d registered as %s, change from %s", c.fd, b.registered[c.fd], c.from)
		}
		if c.to == 0 {
			delete(b.registered, c.fd)
		} else {
			b.registered[c.fd] = c.to
		}
	}
	return nil
}

func (b *fakeBackend) wait(changes []change, events []readiness, timeout time.Duration) (int, error) {
	if b.closed {
		return 0, errors.New("fake: closed")
	}
	b.waits = append(b.waits, slices.Clone(changes))
	b.timeouts = append(b.timeouts, timeout)
	if err := b.applyChanges(changes); err != nil {
		return 0, err
	}
	if b.failWait != nil {
		return 0, b.failWait
	}
	if b.interrupts > 0 {
		b.interrupts--
		return 0, errFakeInterrupted
	}
	var n int
	for _, fd := range slices.Sorted(maps.Keys(b.registered)) {
		if n == len(events) {
			break
		}
		fired := b.kernel.ready[fd] & (b.registered[fd] | Error)
		if fired == 0 {
			continue
		}
		events[n] = readiness{fd: fd, events: fired}
		n++
	}
	return n, nil
}

func (b *fakeBackend) close() error {
	if b.closed {
		return errors.New("fake: already closed")
	}
	b.closed = true
	return nil
}

func (b *fakeBackend) forked() error {
	if b.notInherited {
		return nil
	}
	return b.close()
}

// calls counts the changes submitted for fd, across apply and wait.
func (b *fakeBackend) calls(fd int) (n int) {
	for _, batch := range append(slices.Clone(b.applies), b.waits...) {
		for _, c := range batch {
			if c.fd == fd {
				n++
			}
		}
	}
	return n
}

// newTestReactor builds a Reactor on a fake kernel, with a small table.
func newTestReactor(t *testing.T, opts ...Option) (*Reactor[*coroutine], *testScheduler, *fakeKernel) {
	t.Helper()
	sched := &testScheduler{}
	kernel := newFakeKernel()
	r, err := New[*coroutine](sched, append([]Option{
		WithMaxDescriptors(64),
		withBackend(kernel.create),
	}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, sched, kernel
}

// newTestLogger returns a logger writing JSON lines to the returned buffer.
func newTestLogger(level logiface.Level) (*logiface.Logger[logiface.Event], *bytes.Buffer) {
	var buf bytes.Buffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(&buf),
			stumpy.WithTimeField(``),
		),
		stumpy.L.WithLevel(level),
	)
	return logger.Logger(), &buf
}

// requireInvariant asserts fn panics with an InvariantError for op, whose
// message contains reason.
func requireInvariant(t *testing.T, op string, reason string, fn func()) *InvariantError {
	t.Helper()
	var got *InvariantError
	func() {
		defer func() {
			v := recover()
			require.NotNil(t, v, "expected a panic")
			err, ok := v.(*InvariantError)
			require.Truef(t, ok, "expected *InvariantError, got %T: %v", v, v)
			got = err
		}()
		fn()
	}()
	require.Equal(t, op, got.Op)
	require.Contains(t, got.Error(), reason)
	require.ErrorIs(t, got, ErrInvariant)
	return got
}
