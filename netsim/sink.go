//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Simulated TCP packet sink.
//

package netsim

import (
	"log/slog"
	"net/netip"

	"github.com/rbmk-project/pacesim/netsim/packet"
)

// Sink is a listening TCP port that accepts connections and
// discards the data it receives, acknowledging it cumulatively.
//
// Construct using [*Device.Listen].
type Sink struct {
	// closed indicates that the sink was closed.
	closed bool

	// dev is the device owning the port.
	dev *Device

	// peers tracks the connected peers.
	peers map[netip.AddrPort]*sinkPeer

	// port is the listening port.
	port uint16

	// received is the number of in-order bytes received.
	received uint64
}

// sinkPeer is the receive state for a connected peer.
type sinkPeer struct {
	rcvNxt uint64
}

func newSink(dev *Device, port uint16) *Sink {
	return &Sink{
		dev:   dev,
		peers: map[netip.AddrPort]*sinkPeer{},
		port:  port,
	}
}

// Addr returns the listening address.
func (s *Sink) Addr() netip.AddrPort {
	return netip.AddrPortFrom(s.dev.addr, s.port)
}

// Received returns the number of in-order bytes received so far.
func (s *Sink) Received() uint64 {
	return s.received
}

// Peers returns the number of connected peers.
func (s *Sink) Peers() int {
	return len(s.peers)
}

// Reset sends a RST to every connected peer and forgets them.
func (s *Sink) Reset() {
	for addr := range s.peers {
		s.reply(addr, packet.TCPFlagRST, 0)
	}
	clear(s.peers)
}

// Close resets the connected peers and releases the port. It is idempotent.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.Reset()
	s.dev.closePort(s.port)
	return nil
}

// handle implements [portHandler].
func (s *Sink) handle(pkt *Packet) {
	src := pkt.Src()
	peer := s.peers[src]
	switch {
	case pkt.Flags&packet.TCPFlagRST != 0:
		delete(s.peers, src)

	case pkt.Flags&packet.TCPFlagSYN != 0:
		if peer == nil {
			s.peers[src] = &sinkPeer{}
		}
		s.reply(src, packet.TCPFlagSYN|packet.TCPFlagACK, 0)

	case peer == nil:
		s.reply(src, packet.TCPFlagRST, 0)

	case pkt.Flags&packet.TCPFlagFIN != 0:
		s.reply(src, packet.TCPFlagACK, peer.rcvNxt)
		delete(s.peers, src)

	default:
		s.accept(peer, pkt)
		s.reply(src, packet.TCPFlagACK, peer.rcvNxt)
	}
}

// accept consumes the new bytes of an in-order or overlapping segment.
// Out-of-order segments are discarded and trigger a duplicate ACK.
func (s *Sink) accept(peer *sinkPeer, pkt *Packet) {
	end := pkt.Seq + uint64(len(pkt.Payload))
	if pkt.Seq > peer.rcvNxt || end <= peer.rcvNxt {
		return
	}
	s.received += end - peer.rcvNxt
	peer.rcvNxt = end
	if s.dev.logger != nil {
		s.dev.logger.Debug(
			"sinkReceive",
			slog.String("localAddr", s.Addr().String()),
			slog.String("remoteAddr", pkt.Src().String()),
			slog.Uint64("rcvNxt", peer.rcvNxt),
			slog.Duration("t", s.dev.sched.Now()),
		)
	}
}

// reply sends a control segment to the given peer.
func (s *Sink) reply(dst netip.AddrPort, flags packet.TCPFlags, ack uint64) {
	s.dev.send(&Packet{
		SrcAddr:    s.dev.addr,
		DstAddr:    dst.Addr(),
		IPProtocol: packet.IPProtocolTCP,
		SrcPort:    s.port,
		DstPort:    dst.Port(),
		Flags:      flags,
		Ack:        ack,
	})
}
