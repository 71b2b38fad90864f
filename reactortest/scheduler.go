// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package reactortest provides a deterministic [ioreactor.Scheduler], for
// testing code built on the reactor, and for simulating a coroutine runtime
// without one.
package reactortest

import (
	"github.com/eapache/queue"

	"github.com/joeycumines/go-ioreactor"
)

// Resumption records a single [ioreactor.Scheduler.Resume] call.
type Resumption[H comparable] struct {
	Handle H
	Events ioreactor.Events
}

// Scheduler is a single-threaded, FIFO [ioreactor.Scheduler]. Resumed
// coroutines are queued until taken with [Scheduler.Next].
//
// The zero value is not usable, see [NewScheduler].
type Scheduler[H comparable] struct {
	// OnResume, if set, is called synchronously from Resume, after the
	// resumption is queued, e.g. to run the coroutine body inline.
	OnResume func(h H, events ioreactor.Events)

	ready   *queue.Queue
	running H
	resumes int
}

var _ ioreactor.Scheduler[int] = (*Scheduler[int])(nil)

// NewScheduler returns an empty Scheduler.
func NewScheduler[H comparable]() *Scheduler[H] {
	return &Scheduler[H]{ready: queue.New()}
}

// Running implements [ioreactor.Scheduler].
func (s *Scheduler[H]) Running() H {
	return s.running
}

// Resume implements [ioreactor.Scheduler].
func (s *Scheduler[H]) Resume(h H, events ioreactor.Events) {
	s.ready.Add(Resumption[H]{Handle: h, Events: events})
	s.resumes++
	if s.OnResume != nil {
		s.OnResume(h, events)
	}
}

// Enter makes h the running coroutine until the returned function is
// called, which restores the previous one.
func (s *Scheduler[H]) Enter(h H) (exit func()) {
	prev := s.running
	s.running = h
	return func() { s.running = prev }
}

// Run calls fn with h as the running coroutine.
func (s *Scheduler[H]) Run(h H, fn func()) {
	defer s.Enter(h)()
	fn()
}

// Next takes the oldest queued resumption.
func (s *Scheduler[H]) Next() (Resumption[H], bool) {
	if s.ready.Length() == 0 {
		return Resumption[H]{}, false
	}
	return s.ready.Remove().(Resumption[H]), true
}

// Drain takes every queued resumption, oldest first.
func (s *Scheduler[H]) Drain() []Resumption[H] {
	out := make([]Resumption[H], 0, s.ready.Length())
	for s.ready.Length() != 0 {
		out = append(out, s.ready.Remove().(Resumption[H]))
	}
	return out
}

// Len returns the number of queued resumptions.
func (s *Scheduler[H]) Len() int {
	return s.ready.Length()
}

// Resumes returns the total number of Resume calls.
func (s *Scheduler[H]) Resumes() int {
	return s.resumes
}
