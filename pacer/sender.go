// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package pacer implements a paced bulk sender.

A [*Sender] writes fixed-size packets to a connected stream [Socket]
at a target [datarate.DataRate]. After each successful write it
schedules its next wake-up packetSize*8/rate seconds later on a
virtual clock. When the socket send buffer is full, the sender waits
for the socket to report free space and then retries the very same
send, so backpressure never skips or duplicates a packet.

A session ends when the byte [Budget] is exhausted (completed), when
[*Sender.Stop] is invoked (stopped), or when the socket fails (failed).
The sender never retries failed sends nor reconnects.

The sender runs on the single logical thread driving the [Scheduler]
and holds at most one pending wake-up at any time.
*/
package pacer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"time"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/pacesim/datarate"
	"github.com/rbmk-project/pacesim/trace"
	"github.com/rbmk-project/pacesim/vclock"
)

// Socket is a connected, ordered, reliable byte-stream endpoint.
type Socket interface {
	// Connect starts connecting to the peer. Failures that happen
	// later are reported through the OnError callbacks.
	Connect(peer netip.AddrPort) error

	// Send writes all the data or returns an error. An error that
	// matches [EWOULDBLOCK] signals that the send buffer is full.
	Send(data []byte) (int, error)

	// OnSendBufferAvailable registers a one-shot callback invoked
	// when send buffer space becomes available.
	OnSendBufferAvailable(fn func())

	// OnError registers a callback invoked on asynchronous failures.
	OnError(fn func(err error))

	// Close closes the socket.
	Close() error
}

// Scheduler is the virtual clock driving a [*Sender].
type Scheduler interface {
	Now() time.Duration
	At(t time.Duration, fn func()) *vclock.Event
	After(delay time.Duration, fn func()) *vclock.Event
	Cancel(ev *vclock.Event) bool
}

var _ Scheduler = &vclock.Scheduler{}

var (
	// ErrInvalidConfiguration indicates that Setup received invalid arguments.
	ErrInvalidConfiguration = errors.New("pacer: invalid configuration")

	// ErrAlreadyRunning indicates that the sender is already running.
	ErrAlreadyRunning = errors.New("pacer: already running")

	// ErrNotConfigured indicates that Start was invoked without a prior Setup.
	ErrNotConfigured = errors.New("pacer: not configured")
)

// State is the lifecycle state of a [*Sender].
type State int

const (
	// StateIdle means that the sender is not running.
	StateIdle = State(iota)

	// StateRunning means that the sender is sending.
	StateRunning

	// StateStopped means that [*Sender.Stop] terminated the session.
	StateStopped

	// StateCompleted means that the session exhausted its budget.
	StateCompleted

	// StateFailed means that the socket failed.
	StateFailed
)

// String returns the string representation of the state.
func (st State) String() string {
	switch st {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sender is a paced bulk sender.
//
// The zero value is not ready to use; construct using [New].
type Sender struct {
	// Logger is the optional structured logger.
	Logger *slog.Logger

	// budget is the session byte budget.
	budget Budget

	// bytesSent is the number of bytes sent in the session.
	bytesSent uint64

	// configured is true between Setup and Start.
	configured bool

	// err is the error that caused the failure, if any.
	err error

	// gen identifies the socket bound by the latest Setup.
	gen uint64

	// hub contains the trace sources.
	hub trace.Hub

	// packetSize is the size of each send.
	packetSize int

	// packetsSent is the number of packets sent in the session.
	packetsSent uint64

	// peer is the address to connect to.
	peer netip.AddrPort

	// rate is the target data rate.
	rate datarate.DataRate

	// sched is the virtual clock.
	sched Scheduler

	// socket is the owned socket.
	socket Socket

	// socketOpen is true until we close the socket.
	socketOpen bool

	// state is the lifecycle state.
	state State

	// stopAt is the time of the pending stop when stopEvent is pending.
	stopAt time.Duration

	// stopEvent is the pending stop.
	stopEvent *vclock.Event

	// waiting is true while waiting for send buffer space.
	waiting bool

	// wakeup is the pending start or send wake-up.
	wakeup *vclock.Event
}

// New creates a new idle [*Sender] using the given [Scheduler].
func New(sched Scheduler) *Sender {
	return &Sender{sched: sched}
}

// Traces returns the trace sources of the sender. Subscribe before
// starting the simulation to observe the whole session.
func (s *Sender) Traces() *trace.Hub {
	return &s.hub
}

// State returns the lifecycle state.
func (s *Sender) State() State {
	return s.state
}

// PacketsSent returns the number of packets sent in the current session.
func (s *Sender) PacketsSent() uint64 {
	return s.packetsSent
}

// BytesSent returns the number of bytes sent in the current session.
func (s *Sender) BytesSent() uint64 {
	return s.bytesSent
}

// Err returns the error that caused the failure, if any.
func (s *Sender) Err() error {
	return s.err
}

// Setup binds the socket and the session parameters.
//
// It returns [ErrInvalidConfiguration] if the socket is nil or the
// packet size or rate are not positive, and [ErrAlreadyRunning] while
// a session is running. Setup takes ownership of the socket and
// closes any previously bound socket that is still open.
func (s *Sender) Setup(socket Socket, peer netip.AddrPort, packetSize int, budget Budget, rate datarate.DataRate) error {
	if s.state == StateRunning {
		return ErrAlreadyRunning
	}
	switch {
	case socket == nil:
		return fmt.Errorf("%w: nil socket", ErrInvalidConfiguration)
	case packetSize <= 0:
		return fmt.Errorf("%w: packet size must be positive", ErrInvalidConfiguration)
	case rate <= 0:
		return fmt.Errorf("%w: data rate must be positive", ErrInvalidConfiguration)
	}

	s.sched.Cancel(s.stopEvent)
	s.stopEvent = nil
	if s.socketOpen && s.socket != socket {
		s.closeSocket()
	}

	s.gen++
	s.socket = socket
	s.socketOpen = true
	s.peer = peer
	s.packetSize = packetSize
	s.budget = budget
	s.rate = rate
	s.packetsSent = 0
	s.bytesSent = 0
	s.err = nil
	s.state = StateIdle
	s.configured = true
	s.bindSocket(socket, s.gen)
	return nil
}

// bindSocket registers the socket callbacks for the given generation.
func (s *Sender) bindSocket(socket Socket, gen uint64) {
	socket.OnError(func(err error) {
		if s.gen == gen && s.state == StateRunning {
			s.fail(err)
		}
	})
	if reporter, ok := socket.(trace.CwndReporter); ok {
		reporter.OnCongestionWindow(func(oldValue, newValue uint32) {
			if s.gen == gen {
				s.hub.Cwnd.Emit(trace.CwndEvent{Time: s.sched.Now(), Old: oldValue, New: newValue})
			}
		})
	}
}

// Start schedules the beginning of the session at the given virtual
// time. At that time, the sender connects the socket to the peer and
// sends the first packet. Times in the past mean "now".
//
// It returns [ErrAlreadyRunning] if running and [ErrNotConfigured]
// if Setup was not invoked since the previous session.
func (s *Sender) Start(at time.Duration) error {
	if s.state == StateRunning {
		return ErrAlreadyRunning
	}
	if !s.configured {
		return ErrNotConfigured
	}
	s.configured = false
	s.setState(StateRunning, nil)
	s.wakeup = s.sched.At(at, s.startSession)
	return nil
}

// startSession connects and sends the first packet.
func (s *Sender) startSession() {
	s.wakeup = nil
	if s.state != StateRunning {
		return
	}
	if s.stopDue() {
		s.stopNow()
		return
	}
	if s.Logger != nil {
		s.Logger.Info(
			"connectStart",
			slog.String("remoteAddr", s.peer.String()),
			slog.Duration("t", s.sched.Now()),
		)
	}
	err := s.socket.Connect(s.peer)
	if s.Logger != nil {
		s.Logger.Info(
			"connectDone",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("remoteAddr", s.peer.String()),
			slog.Duration("t", s.sched.Now()),
		)
	}
	if err != nil {
		s.fail(err)
		return
	}
	s.sendPacket()
}

// sendPacket sends the next packet and schedules the next wake-up.
func (s *Sender) sendPacket() {
	s.wakeup = nil
	s.waiting = false
	if s.state != StateRunning {
		return
	}
	if s.stopDue() {
		s.stopNow()
		return
	}

	count := s.packetSize
	if s.budget.Bounded() {
		remaining := s.budget.remaining(s.bytesSent)
		if remaining <= 0 {
			s.setState(StateCompleted, nil)
			return
		}
		count = int(min(uint64(count), remaining))
	}

	if s.Logger != nil {
		s.Logger.Debug(
			"sendStart",
			slog.Int("ioBufferSize", count),
			slog.String("remoteAddr", s.peer.String()),
			slog.Duration("t", s.sched.Now()),
		)
	}
	written, err := s.socket.Send(make([]byte, count))
	if err == nil && written != count {
		err = io.ErrShortWrite
	}
	if s.Logger != nil {
		s.Logger.Debug(
			"sendDone",
			slog.Int("ioBufferSize", count),
			slog.Int("ioBytesCount", written),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("remoteAddr", s.peer.String()),
			slog.Duration("t", s.sched.Now()),
		)
	}
	if errors.Is(err, EWOULDBLOCK) {
		s.waitForBuffer()
		return
	}
	if err != nil {
		s.fail(err)
		return
	}

	s.packetsSent++
	s.bytesSent += uint64(count)
	s.hub.Tx.Emit(trace.TxEvent{Time: s.sched.Now(), Bytes: count, Seq: s.packetsSent})

	if s.budget.Bounded() && s.budget.remaining(s.bytesSent) <= 0 {
		s.setState(StateCompleted, nil)
		return
	}
	s.wakeup = s.sched.After(s.rate.TxTime(s.packetSize), s.sendPacket)
}

// waitForBuffer suspends sending until the socket has buffer space.
func (s *Sender) waitForBuffer() {
	s.waiting = true
	gen := s.gen
	if s.Logger != nil {
		s.Logger.Debug(
			"sendBlocked",
			slog.Uint64("packetsSent", s.packetsSent),
			slog.Duration("t", s.sched.Now()),
		)
	}
	s.socket.OnSendBufferAvailable(func() {
		if s.gen == gen && s.waiting {
			s.sendPacket()
		}
	})
}

// Stop schedules the end of the session at the given virtual time.
// Times in the past mean "now", in which case the sender stops before
// returning. Stopping cancels any pending wake-up and closes the socket
// if still open. Stop is idempotent and a later invocation replaces
// a stop that is still pending.
func (s *Sender) Stop(at time.Duration) {
	s.sched.Cancel(s.stopEvent)
	s.stopEvent = nil
	if at <= s.sched.Now() {
		s.stopNow()
		return
	}
	s.stopAt = at
	s.stopEvent = s.sched.At(at, s.stopNow)
}

// Close stops the sender immediately. It implements [io.Closer].
func (s *Sender) Close() error {
	s.Stop(s.sched.Now())
	return nil
}

// stopDue returns whether a pending stop is due at the current time.
func (s *Sender) stopDue() bool {
	return s.stopEvent.Pending() && s.sched.Now() >= s.stopAt
}

// stopNow terminates the session.
func (s *Sender) stopNow() {
	s.sched.Cancel(s.stopEvent)
	s.stopEvent = nil
	s.sched.Cancel(s.wakeup)
	s.wakeup = nil
	s.waiting = false
	s.configured = false
	s.closeSocket()
	if s.state == StateRunning {
		s.setState(StateStopped, nil)
	}
}

// fail terminates the session because of a socket error.
func (s *Sender) fail(err error) {
	s.err = err
	s.sched.Cancel(s.wakeup)
	s.wakeup = nil
	s.waiting = false
	s.closeSocket()
	s.setState(StateFailed, err)
}

// closeSocket closes the socket unless already closed.
func (s *Sender) closeSocket() {
	if !s.socketOpen {
		return
	}
	s.socketOpen = false
	err := s.socket.Close()
	if s.Logger != nil {
		s.Logger.Debug(
			"closeDone",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("remoteAddr", s.peer.String()),
			slog.Duration("t", s.sched.Now()),
		)
	}
}

// setState records a transition and notifies the observers.
func (s *Sender) setState(state State, err error) {
	s.state = state
	if s.Logger != nil {
		s.Logger.Info(
			"senderState",
			slog.String("state", state.String()),
			slog.Uint64("packetsSent", s.packetsSent),
			slog.Uint64("bytesSent", s.bytesSent),
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.Duration("t", s.sched.Now()),
		)
	}
	s.hub.State.Emit(trace.StateEvent{Time: s.sched.Now(), State: state.String(), Err: err})
}
