//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Simulated TCP client connection.
//

package netsim

import (
	"log/slog"
	"net/netip"
	"time"

	"github.com/rbmk-project/common/errclass"
	"github.com/rbmk-project/pacesim/netsim/packet"
	"github.com/rbmk-project/pacesim/vclock"
)

// TCPConnConfig configures a [*TCPConn]. Zero fields take defaults.
type TCPConnConfig struct {
	// MSS is the maximum segment size in bytes (default: 536).
	MSS int

	// SendBufferSize is the send buffer size in bytes, accounting for
	// both unsent and unacknowledged data (default: 131072).
	SendBufferSize int

	// InitialCwnd is the initial window in segments (default: 1).
	InitialCwnd int

	// MaxCwnd is the maximum window in segments (default: 64).
	MaxCwnd int

	// RTO is the initial retransmission timeout (default: 1s).
	RTO time.Duration

	// MaxRTO bounds the exponential backoff of the RTO (default: 60s).
	MaxRTO time.Duration

	// Logger is the optional structured logger.
	Logger *slog.Logger
}

const (
	defaultMSS            = 536
	defaultSendBufferSize = 131072
	defaultInitialCwnd    = 1
	defaultMaxCwnd        = 64
	defaultRTO            = time.Second
	defaultMaxRTO         = 60 * time.Second
)

// withDefaults returns a copy of the config with defaults applied.
func (cfg *TCPConnConfig) withDefaults() TCPConnConfig {
	out := TCPConnConfig{}
	if cfg != nil {
		out = *cfg
	}
	if out.MSS <= 0 {
		out.MSS = defaultMSS
	}
	if out.SendBufferSize <= 0 {
		out.SendBufferSize = defaultSendBufferSize
	}
	if out.InitialCwnd <= 0 {
		out.InitialCwnd = defaultInitialCwnd
	}
	if out.MaxCwnd < out.InitialCwnd {
		out.MaxCwnd = max(defaultMaxCwnd, out.InitialCwnd)
	}
	if out.RTO <= 0 {
		out.RTO = defaultRTO
	}
	if out.MaxRTO < out.RTO {
		out.MaxRTO = max(defaultMaxRTO, out.RTO)
	}
	return out
}

// tcpState is the state of a [*TCPConn].
type tcpState int

const (
	tcpStateIdle = tcpState(iota)
	tcpStateSynSent
	tcpStateEstablished
	tcpStateClosed
	tcpStateFailed
)

// TCPConn is a simulated TCP client connection living on a [*Device].
//
// The transmission model is deliberately minimal: segments are sent
// within a window, acknowledgements are cumulative, and a single
// retransmission timer implements go-back-N recovery. The window starts
// at InitialCwnd segments, grows by one segment for each acknowledgement
// making progress, and shrinks back to InitialCwnd on timeout.
//
// Construct using [*Device.NewTCPConn].
type TCPConn struct {
	// availfns contains the one-shot buffer-available callbacks.
	availfns []func()

	// buf contains the bytes from sndUna to written.
	buf []byte

	// config is the effective configuration.
	config TCPConnConfig

	// cwnd is the current window in bytes.
	cwnd uint32

	// cwndfns contains the congestion window callbacks.
	cwndfns []func(oldValue, newValue uint32)

	// dev is the device owning the port.
	dev *Device

	// err is the error that caused the failure, if any.
	err error

	// errfns contains the error callbacks.
	errfns []func(error)

	// laddr is the local address.
	laddr netip.AddrPort

	// raddr is the remote address.
	raddr netip.AddrPort

	// rto is the current retransmission timeout.
	rto time.Duration

	// rtoEvent is the pending retransmission timer.
	rtoEvent *vclock.Event

	// sndNxt is the sequence number of the next byte to send.
	sndNxt uint64

	// sndUna is the oldest unacknowledged sequence number.
	sndUna uint64

	// state is the connection state.
	state tcpState

	// stats contains the connection statistics.
	stats TCPConnStats

	// written is the sequence number after the last buffered byte.
	written uint64
}

// TCPConnStats contains [*TCPConn] statistics.
type TCPConnStats struct {
	// BytesAcked is the number of bytes acknowledged by the peer.
	BytesAcked uint64

	// Segments is the number of data segments transmitted.
	Segments int

	// Retransmits is the number of retransmission timeouts.
	Retransmits int
}

func newTCPConn(dev *Device, port uint16, config *TCPConnConfig) *TCPConn {
	cfg := config.withDefaults()
	return &TCPConn{
		config: cfg,
		dev:    dev,
		laddr:  netip.AddrPortFrom(dev.addr, port),
		rto:    cfg.RTO,
		state:  tcpStateIdle,
	}
}

// LocalAddr returns the local address.
func (c *TCPConn) LocalAddr() netip.AddrPort {
	return c.laddr
}

// RemoteAddr returns the remote address, which is
// invalid until [*TCPConn.Connect] is invoked.
func (c *TCPConn) RemoteAddr() netip.AddrPort {
	return c.raddr
}

// Established returns whether the handshake completed and
// the connection did not close or fail since.
func (c *TCPConn) Established() bool {
	return c.state == tcpStateEstablished
}

// Stats returns the connection statistics.
func (c *TCPConn) Stats() TCPConnStats {
	return c.stats
}

// CongestionWindow returns the current window in bytes.
func (c *TCPConn) CongestionWindow() uint32 {
	return c.cwnd
}

// OnCongestionWindow registers a callback invoked when the window changes.
func (c *TCPConn) OnCongestionWindow(fn func(oldValue, newValue uint32)) {
	c.cwndfns = append(c.cwndfns, fn)
}

// OnError registers a callback invoked when the connection fails
// asynchronously, e.g., because the peer reset it.
func (c *TCPConn) OnError(fn func(err error)) {
	c.errfns = append(c.errfns, fn)
}

// OnSendBufferAvailable registers a one-shot callback invoked
// the next time acknowledged data frees send buffer space.
func (c *TCPConn) OnSendBufferAvailable(fn func()) {
	c.availfns = append(c.availfns, fn)
}

// SendBufferAvailable returns the free send buffer space in bytes.
func (c *TCPConn) SendBufferAvailable() int {
	return c.config.SendBufferSize - int(c.written-c.sndUna)
}

// Connect starts the three-way handshake with the given peer. The
// outcome is asynchronous: on failure the [*TCPConn.OnError] callbacks
// receive [ECONNREFUSED]. Data written before the handshake completes
// is buffered and sent once the connection is established.
func (c *TCPConn) Connect(peer netip.AddrPort) error {
	switch c.state {
	case tcpStateSynSent, tcpStateEstablished:
		return EISCONN
	case tcpStateClosed:
		return EPIPE
	case tcpStateFailed:
		return c.err
	}
	if !peer.IsValid() || peer.Port() == 0 {
		return EINVAL
	}
	c.raddr = peer
	c.state = tcpStateSynSent
	if c.config.Logger != nil {
		c.config.Logger.Info(
			"connectStart",
			slog.String("localAddr", c.laddr.String()),
			slog.String("remoteAddr", c.raddr.String()),
			slog.Duration("t", c.dev.sched.Now()),
		)
	}
	c.sendControl(packet.TCPFlagSYN, 0)
	c.armTimer()
	return nil
}

// Send buffers the whole data for transmission or returns [EWOULDBLOCK]
// when the send buffer does not have enough free space. Use
// [*TCPConn.OnSendBufferAvailable] to know when to try again.
func (c *TCPConn) Send(data []byte) (int, error) {
	switch c.state {
	case tcpStateIdle:
		return 0, ENOTCONN
	case tcpStateClosed:
		return 0, EPIPE
	case tcpStateFailed:
		return 0, c.err
	}
	if len(data) > c.config.SendBufferSize {
		return 0, EINVAL
	}
	if len(data) > c.SendBufferAvailable() {
		return 0, EWOULDBLOCK
	}
	c.buf = append(c.buf, data...)
	c.written += uint64(len(data))
	c.output()
	return len(data), nil
}

// Close sends a FIN to the peer and releases the port. It is idempotent.
func (c *TCPConn) Close() error {
	if c.state == tcpStateClosed || c.state == tcpStateFailed {
		return nil
	}
	if c.state == tcpStateSynSent || c.state == tcpStateEstablished {
		c.sendControl(packet.TCPFlagFIN|packet.TCPFlagACK, 0)
	}
	c.state = tcpStateClosed
	c.teardown()
	if c.config.Logger != nil {
		c.config.Logger.Info(
			"closeDone",
			slog.String("localAddr", c.laddr.String()),
			slog.String("remoteAddr", c.raddr.String()),
			slog.Uint64("bytesAcked", c.stats.BytesAcked),
			slog.Duration("t", c.dev.sched.Now()),
		)
	}
	return nil
}

// teardown cancels the timer, drops callbacks and releases the port.
func (c *TCPConn) teardown() {
	c.dev.sched.Cancel(c.rtoEvent)
	c.rtoEvent = nil
	c.availfns = nil
	c.buf = nil
	c.dev.closePort(c.laddr.Port())
}

// fail moves the connection into the failed state and notifies the owner.
func (c *TCPConn) fail(err error) {
	c.err = err
	c.state = tcpStateFailed
	c.teardown()
	if c.config.Logger != nil {
		c.config.Logger.Info(
			"connFailed",
			slog.Any("err", err),
			slog.String("errClass", errclass.New(err)),
			slog.String("localAddr", c.laddr.String()),
			slog.String("remoteAddr", c.raddr.String()),
			slog.Duration("t", c.dev.sched.Now()),
		)
	}
	for _, fn := range c.errfns {
		fn(err)
	}
}

// handle implements [portHandler].
func (c *TCPConn) handle(pkt *Packet) {
	if pkt.Src() != c.raddr {
		return
	}
	switch {
	case pkt.Flags&packet.TCPFlagRST != 0:
		c.handleReset()

	case pkt.Flags&packet.TCPFlagSYN != 0 && pkt.Flags&packet.TCPFlagACK != 0:
		c.handleSynAck()

	case pkt.Flags&packet.TCPFlagACK != 0:
		c.handleAck(pkt.Ack)
	}
}

func (c *TCPConn) handleReset() {
	switch c.state {
	case tcpStateSynSent:
		c.fail(ECONNREFUSED)
	case tcpStateEstablished:
		c.fail(ECONNRESET)
	}
}

func (c *TCPConn) handleSynAck() {
	if c.state != tcpStateSynSent {
		return
	}
	c.state = tcpStateEstablished
	c.rto = c.config.RTO
	c.dev.sched.Cancel(c.rtoEvent)
	c.rtoEvent = nil
	if c.config.Logger != nil {
		c.config.Logger.Info(
			"connectDone",
			slog.String("localAddr", c.laddr.String()),
			slog.String("remoteAddr", c.raddr.String()),
			slog.Duration("t", c.dev.sched.Now()),
		)
	}
	c.setCwnd(uint32(c.config.InitialCwnd * c.config.MSS))
	c.output()
}

func (c *TCPConn) handleAck(ack uint64) {
	if c.state != tcpStateEstablished || ack <= c.sndUna || ack > c.written {
		return
	}
	freed := ack - c.sndUna
	c.buf = c.buf[freed:]
	c.sndUna = ack
	c.sndNxt = max(c.sndNxt, ack)
	c.stats.BytesAcked += freed
	c.rto = c.config.RTO

	c.setCwnd(min(c.cwnd+uint32(c.config.MSS), uint32(c.config.MaxCwnd*c.config.MSS)))

	c.dev.sched.Cancel(c.rtoEvent)
	c.rtoEvent = nil
	c.output()

	fns := c.availfns
	c.availfns = nil
	for _, fn := range fns {
		fn()
	}
}

// onTimeout handles the expiration of the retransmission timer.
func (c *TCPConn) onTimeout() {
	c.rtoEvent = nil
	c.stats.Retransmits++
	c.rto = min(2*c.rto, c.config.MaxRTO)
	switch c.state {
	case tcpStateSynSent:
		c.sendControl(packet.TCPFlagSYN, 0)
		c.armTimer()

	case tcpStateEstablished:
		if c.sndUna == c.sndNxt {
			return
		}
		if c.config.Logger != nil {
			c.config.Logger.Debug(
				"retransmit",
				slog.String("localAddr", c.laddr.String()),
				slog.Uint64("sndUna", c.sndUna),
				slog.Uint64("sndNxt", c.sndNxt),
				slog.Duration("t", c.dev.sched.Now()),
			)
		}
		c.sndNxt = c.sndUna
		c.setCwnd(uint32(c.config.InitialCwnd * c.config.MSS))
		c.output()
	}
}

// output transmits as many segments as the window allows.
func (c *TCPConn) output() {
	if c.state != tcpStateEstablished {
		return
	}
	for c.sndNxt < c.written {
		inflight := c.sndNxt - c.sndUna
		if inflight >= uint64(c.cwnd) {
			break
		}
		count := min(uint64(c.config.MSS), c.written-c.sndNxt, uint64(c.cwnd)-inflight)
		payload := make([]byte, count)
		copy(payload, c.buf[inflight:inflight+count])
		c.dev.send(&Packet{
			SrcAddr:    c.laddr.Addr(),
			DstAddr:    c.raddr.Addr(),
			IPProtocol: packet.IPProtocolTCP,
			SrcPort:    c.laddr.Port(),
			DstPort:    c.raddr.Port(),
			Flags:      packet.TCPFlagACK | packet.TCPFlagPSH,
			Seq:        c.sndNxt,
			Payload:    payload,
		})
		c.sndNxt += count
		c.stats.Segments++
	}
	if c.sndUna < c.sndNxt {
		c.armTimer()
	}
}

// armTimer arms the retransmission timer unless it is already pending.
func (c *TCPConn) armTimer() {
	if c.rtoEvent.Pending() {
		return
	}
	c.rtoEvent = c.dev.sched.After(c.rto, c.onTimeout)
}

// setCwnd updates the window and notifies the callbacks on change.
func (c *TCPConn) setCwnd(value uint32) {
	if value == c.cwnd {
		return
	}
	old := c.cwnd
	c.cwnd = value
	for _, fn := range c.cwndfns {
		fn(old, value)
	}
}

// sendControl sends a segment without payload.
func (c *TCPConn) sendControl(flags packet.TCPFlags, ack uint64) {
	c.dev.send(&Packet{
		SrcAddr:    c.laddr.Addr(),
		DstAddr:    c.raddr.Addr(),
		IPProtocol: packet.IPProtocolTCP,
		SrcPort:    c.laddr.Port(),
		DstPort:    c.raddr.Port(),
		Flags:      flags,
		Seq:        c.sndNxt,
		Ack:        ack,
	})
}
