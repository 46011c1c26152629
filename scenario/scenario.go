// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package scenario wires paced senders to the virtual-time network.

A [*Scenario] owns a [*vclock.Scheduler] and a set of sessions. Each
session gets a dedicated point-to-point link between a client device
and a sink device, a [*netsim.Sink] on the sink device, a client
[*netsim.TCPConn] and a [*pacer.Sender] writing to it.

[Defaults] and [DefaultSessions] reproduce the classic two-session
experiment: a tiny transfer starting at 2s and a larger one starting
at 5s over a slower bottleneck link, both observed until 20s.
*/
package scenario

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rbmk-project/common/runtimex"
	"github.com/rbmk-project/pacesim/closepool"
	"github.com/rbmk-project/pacesim/netsim"
	"github.com/rbmk-project/pacesim/pacer"
	"github.com/rbmk-project/pacesim/trace"
	"github.com/rbmk-project/pacesim/vclock"
)

// Scenario manages the sessions of a simulation.
//
// The zero value is not ready to use; construct using [New].
//
// This type IS NOT goroutine safe.
type Scenario struct {
	// Logger is the optional structured logger, passed down
	// to the components of sessions added afterwards.
	Logger *slog.Logger

	// pool tracks all that which needs to be closed.
	pool closepool.Pool

	// sched is the virtual clock.
	sched *vclock.Scheduler

	// sessions contains the sessions in order of addition.
	sessions []*Session
}

// New creates a new empty [*Scenario].
func New() *Scenario {
	return &Scenario{sched: vclock.New()}
}

// Scheduler returns the scenario clock.
func (s *Scenario) Scheduler() *vclock.Scheduler {
	return s.sched
}

// Sessions returns the sessions in order of addition.
func (s *Scenario) Sessions() []*Session {
	return s.sessions
}

// AddSession builds a session using the given configuration and
// schedules its start and, if configured, its stop.
func (s *Scenario) AddSession(config *SessionConfig) (*Session, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	for _, sess := range s.sessions {
		if sess.config.Name == config.Name {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, config.Name)
		}
	}

	if s.sched.Logger == nil {
		s.sched.Logger = s.Logger
	}
	p2p := netsim.NewPointToPoint(s.sched, &netsim.PointToPointConfig{
		LeftAddr:        config.ClientAddr,
		RightAddr:       config.SinkAddr.Addr(),
		Rate:            config.LinkRate,
		Delay:           config.LinkDelay,
		RightErrorModel: config.errorModel(),
		Logger:          s.Logger,
	})

	sink, err := p2p.Right().Listen(config.SinkAddr.Port())
	if err != nil {
		return nil, err
	}
	s.pool.Add(sink)

	tcpConfig := &netsim.TCPConnConfig{}
	if config.TCP != nil {
		*tcpConfig = *config.TCP
	}
	if tcpConfig.Logger == nil {
		tcpConfig.Logger = s.Logger
	}
	conn, err := p2p.Left().NewTCPConn(tcpConfig)
	if err != nil {
		return nil, err
	}
	s.pool.Add(conn)

	sender := pacer.New(s.sched)
	sender.Logger = s.Logger
	if s.Logger != nil {
		sender.Logger = s.Logger.With(slog.String("session", config.Name))
	}
	if err := sender.Setup(conn, config.SinkAddr, config.PacketSize, config.Budget, config.Rate); err != nil {
		return nil, err
	}
	s.pool.Add(sender)

	hub := sender.Traces()
	p2p.Right().OnDrop(func(*netsim.Packet) {
		hub.Drop.Emit(trace.DropEvent{Time: s.sched.Now()})
	})

	if err := sender.Start(config.StartAt); err != nil {
		return nil, err
	}
	if config.StopAt > 0 {
		sender.Stop(config.StopAt)
	}

	sess := &Session{
		config: *config,
		conn:   conn,
		p2p:    p2p,
		sender: sender,
		sink:   sink,
	}
	s.sessions = append(s.sessions, sess)
	return sess, nil
}

// MustAddSession is like [*Scenario.AddSession] but panics on error.
func (s *Scenario) MustAddSession(config *SessionConfig) *Session {
	return runtimex.Try1(s.AddSession(config))
}

// AttachWriter subscribes the writer to the drops of every session
// and to the congestion window of sessions with TraceCwnd set.
func (s *Scenario) AttachWriter(w *trace.Writer) {
	for _, sess := range s.sessions {
		hub := sess.Traces()
		hub.Drop.Subscribe(w.WriteDrop)
		if sess.config.TraceCwnd {
			hub.Cwnd.Subscribe(w.WriteCwnd)
		}
	}
}

// Run advances the simulation up to and including stopAt and
// returns the summary of each session in order of addition.
func (s *Scenario) Run(stopAt time.Duration) []Summary {
	s.sched.RunUntil(stopAt)
	summaries := make([]Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		summaries = append(summaries, sess.Summary())
	}
	return summaries
}

// Close releases all resources associated with the scenario.
func (s *Scenario) Close() error {
	return s.pool.Close()
}
