// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package ioreactor

// maxTableSize is the largest descriptor table we will allocate. Larger
// limits are treated as unbounded, see maxDescriptors.
const maxTableSize = 1 << 22

// listEnd terminates the pending-change list. Links are fd+1, so 0 is free
// to mean "not linked".
const listEnd int32 = -1

// slot is the per-descriptor state.
type slot[H comparable] struct {
	// reader and writer are non-owning back-references, the zero value
	// meaning no waiter.
	reader H
	writer H
	// active mirrors what was last pushed to the kernel.
	active Events
	// firing accumulates events during a single dispatch pass.
	firing Events
	// next is the pending-change list link.
	next int32
}

// desired derives the kernel registration the waiters need.
func (s *slot[H]) desired() Events {
	var zero H
	var e Events
	if s.reader != zero {
		e |= Readable
	}
	if s.writer != zero {
		e |= Writable
	}
	return e
}

// table is the descriptor table, with the pending-change list threaded
// through it.
type table[H comparable] struct {
	slots []slot[H]
	head  int32
}

func newTable[H comparable](n int) table[H] {
	return table[H]{
		slots: make([]slot[H], n),
		head:  listEnd,
	}
}

// link adds fd to the pending-change list, if it isn't already on it.
func (t *table[H]) link(fd int) {
	s := &t.slots[fd]
	if s.next != 0 {
		return
	}
	s.next = t.head
	t.head = int32(fd) + 1
}

// linked reports whether fd is on the pending-change list.
func (t *table[H]) linked(fd int) bool {
	return t.slots[fd].next != 0
}

// pop unlinks and returns the head of the pending-change list.
func (t *table[H]) pop() (int, bool) {
	if t.head == listEnd {
		return 0, false
	}
	fd := int(t.head - 1)
	s := &t.slots[fd]
	t.head = s.next
	s.next = 0
	return fd, true
}

// detach empties the pending-change list, returning a cursor to walk the
// detached entries with unlinkNext. Entries not yet walked still count as
// linked, so link remains a no-op for them, while walked entries may be
// linked onto the (new) list again.
func (t *table[H]) detach() int32 {
	head := t.head
	t.head = listEnd
	return head
}

// unlinkNext unlinks the descriptor at cursor, which must not be listEnd.
func (t *table[H]) unlinkNext(cursor int32) (fd int, next int32) {
	fd = int(cursor - 1)
	s := &t.slots[fd]
	next = s.next
	s.next = 0
	return fd, next
}

// pending counts the descriptors on the pending-change list.
func (t *table[H]) pending() (n int) {
	for cur := t.head; cur != listEnd; cur = t.slots[cur-1].next {
		n++
	}
	return n
}

// reset empties the slot for fd, leaving its list membership alone.
func (t *table[H]) reset(fd int) {
	s := &t.slots[fd]
	next := s.next
	*s = slot[H]{next: next}
}
