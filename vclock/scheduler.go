//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Discrete-event scheduler.
//

/*
Package vclock implements a discrete-event scheduler driven by a
virtual clock.

Virtual time is a [time.Duration] measured from the beginning of the
simulation. It only advances when the [*Scheduler] processes events, so
it is fully decoupled from the wall clock.

All callbacks run on the goroutine that invokes [*Scheduler.Run],
[*Scheduler.RunUntil] or [*Scheduler.Step]. Callbacks are invoked in
non-decreasing virtual time order, and callbacks due at the same instant
are invoked in registration order.
*/
package vclock

import (
	"container/heap"
	"log/slog"
	"time"
)

// Event is a callback scheduled for a given virtual time.
//
// Use [*Scheduler.Cancel] to prevent a pending event from firing.
type Event struct {
	// at is the virtual time at which the event is due.
	at time.Duration

	// fn is the callback to invoke.
	fn func()

	// index is the position inside the heap or -1.
	index int

	// seq breaks ties between events due at the same instant.
	seq uint64
}

// Time returns the virtual time at which the event is due.
func (ev *Event) Time() time.Duration {
	return ev.at
}

// Pending returns whether the event is still waiting to fire.
func (ev *Event) Pending() bool {
	return ev != nil && ev.index >= 0
}

// Scheduler is a discrete-event scheduler.
//
// The zero value is not ready to use; construct using [New].
//
// A [*Scheduler] is not goroutine safe. The simulation is meant to
// run on a single logical thread of execution.
type Scheduler struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	// now is the current virtual time.
	now time.Duration

	// queue contains the pending events.
	queue eventQueue

	// seq is the next event sequence number.
	seq uint64

	// stopped is set by Stop to interrupt Run.
	stopped bool
}

// New creates a new [*Scheduler] whose virtual clock reads zero.
func New() *Scheduler {
	return &Scheduler{}
}

// Now returns the current virtual time.
func (s *Scheduler) Now() time.Duration {
	return s.now
}

// Pending returns the number of events waiting to fire.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}

// After schedules fn to run after the given delay. A negative delay
// is treated as zero, i.e., fn will run at the current instant after
// all the callbacks already scheduled for the same instant.
func (s *Scheduler) After(delay time.Duration, fn func()) *Event {
	return s.At(s.now+max(0, delay), fn)
}

// At schedules fn to run at the given virtual time. Times in the past
// are clamped to the current virtual time.
func (s *Scheduler) At(t time.Duration, fn func()) *Event {
	ev := &Event{
		at:    max(t, s.now),
		fn:    fn,
		index: -1,
		seq:   s.seq,
	}
	s.seq++
	heap.Push(&s.queue, ev)
	return ev
}

// Cancel removes a pending event. It returns true if the event
// was pending and false if it already fired or was canceled.
func (s *Scheduler) Cancel(ev *Event) bool {
	if !ev.Pending() {
		return false
	}
	heap.Remove(&s.queue, ev.index)
	return true
}

// Step runs the next pending event, if any, advancing the virtual
// clock to its due time. It returns false when no event is pending.
func (s *Scheduler) Step() bool {
	if len(s.queue) <= 0 {
		return false
	}
	ev := heap.Pop(&s.queue).(*Event)
	s.now = ev.at
	ev.fn()
	return true
}

// Run runs events until there are no pending events or until
// [*Scheduler.Stop] is invoked by a callback.
func (s *Scheduler) Run() {
	s.stopped = false
	for !s.stopped && s.Step() {
		// nothing
	}
	s.logStop()
}

// RunUntil runs all the events due at or before the given virtual
// time and then advances the virtual clock to that time. Events due
// later remain pending. As with [*Scheduler.Run], a callback may
// invoke [*Scheduler.Stop] to return early.
func (s *Scheduler) RunUntil(t time.Duration) {
	s.stopped = false
	for !s.stopped && len(s.queue) > 0 && s.queue[0].at <= t {
		s.Step()
	}
	if !s.stopped {
		s.now = max(s.now, t)
	}
	s.logStop()
}

// Stop causes the current [*Scheduler.Run] or [*Scheduler.RunUntil]
// to return after the running callback completes.
func (s *Scheduler) Stop() {
	s.stopped = true
}

func (s *Scheduler) logStop() {
	if s.Logger != nil {
		s.Logger.Debug(
			"schedulerStop",
			slog.Duration("now", s.now),
			slog.Int("pending", len(s.queue)),
			slog.Bool("stopped", s.stopped),
		)
	}
}

// eventQueue is a min-heap of [*Event] ordered by time and then by sequence.
type eventQueue []*Event

var _ heap.Interface = &eventQueue{}

// Len implements [heap.Interface].
func (q eventQueue) Len() int {
	return len(q)
}

// Less implements [heap.Interface].
func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

// Swap implements [heap.Interface].
func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

// Push implements [heap.Interface].
func (q *eventQueue) Push(x any) {
	ev := x.(*Event)
	ev.index = len(*q)
	*q = append(*q, ev)
}

// Pop implements [heap.Interface].
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*q = old[:n-1]
	return ev
}
