// SPDX-License-Identifier: GPL-3.0-or-later

// Package packet contains [*Packet] and the related definitions.
package packet

import (
	"fmt"
	"net/netip"
	"strings"
)

// IPProtocol is the protocol number of an IP packet.
type IPProtocol uint8

// String returns the string representation of the IP protocol.
func (p IPProtocol) String() string {
	switch p {
	case IPProtocolTCP:
		return "tcp"

	case IPProtocolUDP:
		return "udp"

	default:
		return "unknown"
	}
}

const (
	// IPProtocolTCP is the TCP protocol number.
	IPProtocolTCP = 6

	// IPProtocolUDP is the UDP protocol number.
	IPProtocolUDP = 17
)

// TCPFlags is a set of TCP flags.
type TCPFlags uint8

// String returns the string representation of the TCP flags.
func (flags TCPFlags) String() string {
	var builder strings.Builder
	for _, f := range []struct {
		flag TCPFlags
		name byte
	}{
		{TCPFlagFIN, 'F'},
		{TCPFlagSYN, 'S'},
		{TCPFlagRST, 'R'},
		{TCPFlagPSH, 'P'},
		{TCPFlagACK, 'A'},
	} {
		if flags&f.flag != 0 {
			builder.WriteByte(f.name)
		} else {
			builder.WriteByte('.')
		}
	}
	return builder.String()
}

const (
	// TCPFlagFIN is the FIN flag.
	TCPFlagFIN = TCPFlags(1 << iota)

	// TCPFlagSYN is the SYN flag.
	TCPFlagSYN

	// TCPFlagRST is the RST flag.
	TCPFlagRST

	// TCPFlagPSH is the PSH flag.
	TCPFlagPSH

	// TCPFlagACK is the ACK flag.
	TCPFlagACK
)

// HeaderSize is the number of bytes accounted for the IPv4 and
// TCP headers when computing the on-the-wire size of a [*Packet].
const HeaderSize = 40

// Packet is a network packet.
type Packet struct {
	// SrcAddr is the source address.
	SrcAddr netip.Addr

	// DstAddr is the destination address.
	DstAddr netip.Addr

	// IPProtocol is the protocol number.
	IPProtocol IPProtocol

	// SrcPort is the source port.
	SrcPort uint16

	// DstPort is the destination port.
	DstPort uint16

	// Flags contains the TCP flags.
	Flags TCPFlags

	// Seq is the TCP sequence number of the first payload byte.
	Seq uint64

	// Ack is the TCP cumulative acknowledgement number.
	Ack uint64

	// Payload is the packet payload.
	Payload []byte
}

// Size returns the on-the-wire size of the packet.
func (p *Packet) Size() int {
	return HeaderSize + len(p.Payload)
}

// Src returns the source endpoint.
func (p *Packet) Src() netip.AddrPort {
	return netip.AddrPortFrom(p.SrcAddr, p.SrcPort)
}

// Dst returns the destination endpoint.
func (p *Packet) Dst() netip.AddrPort {
	return netip.AddrPortFrom(p.DstAddr, p.DstPort)
}

// String returns the string representation of the packet.
func (p *Packet) String() string {
	switch p.IPProtocol {
	case IPProtocolTCP:
		return fmt.Sprintf(
			"%s -> %s %s flags=%s seq=%d ack=%d length=%d",
			p.Src(), p.Dst(), p.IPProtocol, p.Flags, p.Seq, p.Ack, len(p.Payload),
		)
	default:
		return fmt.Sprintf("%s -> %s %s length=%d", p.Src(), p.Dst(), p.IPProtocol, len(p.Payload))
	}
}
