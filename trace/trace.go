// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package trace contains observational hooks for simulated components.

A [*Source] is a named channel of events of a given type. Any number
of listeners may [*Source.Subscribe] to it, usually before the
simulation starts. Delivery is synchronous, fire-and-forget, and
happens in subscription order. Emitters never interpret the values
they pass through.

A [*Hub] groups the sources exposed by a paced sender: congestion
window changes, receive-side drops, transmissions and state changes.
*/
package trace

import (
	"time"
)

// Source is a channel of events of type E.
//
// The zero value is ready to use. A [*Source] is not goroutine safe.
type Source[E any] struct {
	// next is the next subscription identifier.
	next uint64

	// subs contains the active subscriptions.
	subs []subscription[E]
}

// subscription is a subscription to a [*Source].
type subscription[E any] struct {
	id uint64
	fn func(E)
}

// Subscribe registers fn to receive events. The returned function
// cancels the subscription and may be invoked more than once.
func (s *Source[E]) Subscribe(fn func(E)) (unsubscribe func()) {
	id := s.next
	s.next++
	s.subs = append(s.subs, subscription[E]{id: id, fn: fn})
	return func() {
		for idx, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:idx:idx], s.subs[idx+1:]...)
				return
			}
		}
	}
}

// Emit delivers ev to all subscribers.
func (s *Source[E]) Emit(ev E) {
	for _, sub := range s.subs {
		sub.fn(ev)
	}
}

// Len returns the number of active subscriptions.
func (s *Source[E]) Len() int {
	return len(s.subs)
}

// CwndEvent reports a congestion window change in bytes.
type CwndEvent struct {
	Time time.Duration
	Old  uint32
	New  uint32
}

// DropEvent reports a packet dropped on the receive side.
type DropEvent struct {
	Time time.Duration
}

// TxEvent reports an application-layer send.
type TxEvent struct {
	// Time is the virtual time of the send.
	Time time.Duration

	// Bytes is the number of bytes written to the socket.
	Bytes int

	// Seq is the one-based index of the packet within the session.
	Seq uint64
}

// StateEvent reports a lifecycle transition.
type StateEvent struct {
	// Time is the virtual time of the transition.
	Time time.Duration

	// State is the name of the new state.
	State string

	// Err is the error that caused the transition, if any.
	Err error
}

// Hub groups the trace sources of a sender.
//
// The zero value is ready to use.
type Hub struct {
	// Cwnd carries congestion window changes sourced from the transport.
	Cwnd Source[CwndEvent]

	// Drop carries receive-side packet drops.
	Drop Source[DropEvent]

	// Tx carries application-layer sends.
	Tx Source[TxEvent]

	// State carries lifecycle transitions.
	State Source[StateEvent]
}

// CwndReporter is implemented by transports able to report
// congestion window changes.
type CwndReporter interface {
	OnCongestionWindow(fn func(oldValue, newValue uint32))
}
