// Package sched implements the daemon's single-threaded scheduler: a
// min-heap of (deadline, callback, argument) records with microsecond
// resolution and explicit cancellation (spec.md s4.1).
package sched

import "time"

// CallbackFlag tells a callback why it is firing.
type CallbackFlag int

const (
	// Due means the deadline was reached normally.
	Due CallbackFlag = iota
	// Canceled means Cancel was called; this is the callback's one and
	// only chance to release resources (spec.md s5 "Cancellation").
	Canceled
)

// Callback is re-armed by returning a positive duration (the next delay);
// returning 0 disarms the event.
type Callback func(flag CallbackFlag) time.Duration

// Event is the scheduler's internal record; Handle is the opaque type
// callers hold to Cancel an event.
type Event struct {
	cb       Callback
	deadline time.Time
	seq      uint64 // FIFO tiebreak for equal deadlines (spec.md s5)
}

type Handle = *Event

// deadlineKey orders primarily by deadline and, for equal deadlines,
// by arrival sequence (spec.md s5 "Scheduled events with the same
// deadline fire in FIFO order").
type deadlineKey struct {
	deadline time.Time
	seq      uint64
}

func (k deadlineKey) Less(o deadlineKey) bool {
	if !k.deadline.Equal(o.deadline) {
		return k.deadline.Before(o.deadline)
	}
	return k.seq < o.seq
}

// Scheduler is not safe for concurrent use: it is private to the event
// loop (spec.md s5 "Shared resources").
type Scheduler struct {
	q     Queue[*Event, deadlineKey]
	byPtr map[*Event]*item[*Event, deadlineKey]
	seq   uint64
	now   func() time.Time
}

// New constructs an empty Scheduler. now defaults to time.Now; tests may
// substitute a fake clock.
func New() *Scheduler {
	return &Scheduler{
		byPtr: make(map[*Event]*item[*Event, deadlineKey]),
		now:   time.Now,
	}
}

func priorityFor(deadline time.Time, seq uint64) deadlineKey {
	return deadlineKey{deadline: deadline, seq: seq}
}

// Enqueue schedules cb to fire after delay. Returns a Handle usable with
// Cancel.
func (s *Scheduler) Enqueue(delay time.Duration, cb Callback) Handle {
	s.seq++
	ev := &Event{cb: cb, deadline: s.now().Add(delay), seq: s.seq}
	it := s.q.Push(ev, priorityFor(ev.deadline, ev.seq))
	s.byPtr[ev] = it
	return ev
}

// Cancel cancels a scheduled event, invoking its callback exactly once
// with the Canceled flag for resource release (spec.md s4.1, s5). Safe to
// call on an event that has already fired or been canceled.
func (s *Scheduler) Cancel(h Handle) {
	it, ok := s.byPtr[h]
	if !ok {
		return
	}
	s.q.Remove(it)
	delete(s.byPtr, h)
	h.cb(Canceled)
}

// NoDeadline is the sentinel RunDue returns when the scheduler is empty.
const NoDeadline = time.Duration(-1)

// RunDue fires every event whose deadline has passed, re-arming it if its
// callback returns a positive duration. It returns the time until the
// next deadline, or NoDeadline if the scheduler is empty.
func (s *Scheduler) RunDue() time.Duration {
	now := s.now()
	for s.q.Len() > 0 {
		ev := s.q.Peek()
		if ev.deadline.After(now) {
			break
		}
		it := s.byPtr[ev]
		s.q.Remove(it)
		delete(s.byPtr, ev)

		rearm := ev.cb(Due)
		if rearm > 0 {
			s.seq++
			ev.deadline = now.Add(rearm)
			ev.seq = s.seq
			nit := s.q.Push(ev, priorityFor(ev.deadline, ev.seq))
			s.byPtr[ev] = nit
		}
	}
	if s.q.Len() == 0 {
		return NoDeadline
	}
	d := s.q.Peek().deadline.Sub(s.now())
	if d < 0 {
		d = 0
	}
	return d
}

// Len returns the number of live (not yet fired/canceled) events.
func (s *Scheduler) Len() int { return s.q.Len() }
