// SPDX-License-Identifier: GPL-3.0-or-later

package scenario

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/rbmk-project/pacesim/datarate"
	"github.com/rbmk-project/pacesim/netsim"
	"github.com/rbmk-project/pacesim/netsim/link"
	"github.com/rbmk-project/pacesim/pacer"
	"github.com/rbmk-project/pacesim/trace"
)

var (
	// ErrInvalidSession indicates that a [*SessionConfig] is not valid.
	ErrInvalidSession = errors.New("scenario: invalid session")

	// ErrDuplicateSession indicates that a session with the same name exists.
	ErrDuplicateSession = errors.New("scenario: duplicate session")
)

// SessionConfig describes a paced session between a client and a
// sink connected by a dedicated point-to-point link.
type SessionConfig struct {
	// Name identifies the session in logs, traces and metrics.
	Name string

	// ClientAddr is the address of the sending device.
	ClientAddr netip.Addr

	// SinkAddr is the address and port where the sink listens.
	SinkAddr netip.AddrPort

	// LinkRate is the data rate of the link.
	LinkRate datarate.DataRate

	// LinkDelay is the propagation delay of the link.
	LinkDelay time.Duration

	// ErrorRate is the receive error rate at the sink device. Zero
	// disables the error model.
	ErrorRate float64

	// ErrorModel optionally replaces the model built from ErrorRate.
	ErrorModel link.ErrorModel

	// ErrorUnit is the unit ErrorRate applies to.
	ErrorUnit link.ErrorUnit

	// Seed seeds the error model.
	Seed uint64

	// PacketSize is the size of each send.
	PacketSize int

	// Budget is the session byte budget.
	Budget pacer.Budget

	// Rate is the target data rate of the sender.
	Rate datarate.DataRate

	// StartAt is when the sender starts.
	StartAt time.Duration

	// StopAt is when the sender stops. Zero means that the
	// sender runs until the budget is exhausted.
	StopAt time.Duration

	// TCP optionally overrides the client connection defaults.
	TCP *netsim.TCPConnConfig

	// TraceCwnd enables writing congestion window changes
	// through [*Scenario.AttachWriter].
	TraceCwnd bool
}

func (cfg *SessionConfig) validate() error {
	switch {
	case cfg.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidSession)
	case !cfg.ClientAddr.IsValid():
		return fmt.Errorf("%w %s: invalid client address", ErrInvalidSession, cfg.Name)
	case !cfg.SinkAddr.IsValid() || cfg.SinkAddr.Port() == 0:
		return fmt.Errorf("%w %s: invalid sink address", ErrInvalidSession, cfg.Name)
	case cfg.ClientAddr == cfg.SinkAddr.Addr():
		return fmt.Errorf("%w %s: client and sink share the address", ErrInvalidSession, cfg.Name)
	case cfg.LinkRate <= 0:
		return fmt.Errorf("%w %s: link rate must be positive", ErrInvalidSession, cfg.Name)
	case cfg.LinkDelay < 0:
		return fmt.Errorf("%w %s: negative link delay", ErrInvalidSession, cfg.Name)
	case cfg.ErrorRate < 0 || cfg.ErrorRate > 1:
		return fmt.Errorf("%w %s: error rate outside [0, 1]", ErrInvalidSession, cfg.Name)
	case cfg.StartAt < 0:
		return fmt.Errorf("%w %s: negative start time", ErrInvalidSession, cfg.Name)
	case cfg.StopAt != 0 && cfg.StopAt < cfg.StartAt:
		return fmt.Errorf("%w %s: stop time before start time", ErrInvalidSession, cfg.Name)
	}
	return nil
}

// errorModel returns the receive error model for the sink device.
func (cfg *SessionConfig) errorModel() link.ErrorModel {
	if cfg.ErrorModel != nil {
		return cfg.ErrorModel
	}
	if cfg.ErrorRate <= 0 {
		return nil
	}
	return link.NewRateErrorModel(cfg.ErrorRate, cfg.ErrorUnit, cfg.Seed)
}

// Session is a running paced session.
type Session struct {
	config SessionConfig
	conn   *netsim.TCPConn
	p2p    *netsim.PointToPoint
	sender *pacer.Sender
	sink   *netsim.Sink
}

// Name returns the session name.
func (s *Session) Name() string {
	return s.config.Name
}

// Config returns a copy of the session configuration.
func (s *Session) Config() SessionConfig {
	return s.config
}

// Sender returns the paced sender.
func (s *Session) Sender() *pacer.Sender {
	return s.sender
}

// Sink returns the receiving sink.
func (s *Session) Sink() *netsim.Sink {
	return s.sink
}

// Conn returns the client connection.
func (s *Session) Conn() *netsim.TCPConn {
	return s.conn
}

// Traces returns the trace sources of the session.
func (s *Session) Traces() *trace.Hub {
	return s.sender.Traces()
}

// Summary is the outcome of a session.
type Summary struct {
	// Name is the session name.
	Name string

	// State is the final sender state.
	State pacer.State

	// PacketsSent is the number of packets the sender wrote.
	PacketsSent uint64

	// BytesSent is the number of bytes the sender wrote.
	BytesSent uint64

	// BytesReceived is the number of in-order bytes the sink received.
	BytesReceived uint64

	// Drops is the number of packets the sink device dropped.
	Drops int

	// Retransmits is the number of retransmission timeouts.
	Retransmits int

	// Err is the error that failed the session, if any.
	Err error
}

// Summary returns the current outcome of the session.
func (s *Session) Summary() Summary {
	return Summary{
		Name:          s.config.Name,
		State:         s.sender.State(),
		PacketsSent:   s.sender.PacketsSent(),
		BytesSent:     s.sender.BytesSent(),
		BytesReceived: s.sink.Received(),
		Drops:         s.p2p.Right().RxStats().Dropped,
		Retransmits:   s.conn.Stats().Retransmits,
		Err:           s.sender.Err(),
	}
}
