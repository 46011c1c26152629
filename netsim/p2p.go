//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Point-to-point topology.
//

package netsim

import (
	"log/slog"
	"math"
	"net/netip"
	"time"

	"github.com/rbmk-project/pacesim/datarate"
	"github.com/rbmk-project/pacesim/netsim/link"
	"github.com/rbmk-project/pacesim/netsim/packet"
	"github.com/rbmk-project/pacesim/vclock"
)

// PointToPointConfig configures a [*PointToPoint].
type PointToPointConfig struct {
	// LeftAddr is the address of the left [*Device].
	LeftAddr netip.Addr

	// RightAddr is the address of the right [*Device].
	RightAddr netip.Addr

	// Rate is the data rate of both directions.
	Rate datarate.DataRate

	// Delay is the propagation delay of both directions.
	Delay time.Duration

	// LeftErrorModel is the optional receive error model of the left device.
	LeftErrorModel link.ErrorModel

	// RightErrorModel is the optional receive error model of the right device.
	RightErrorModel link.ErrorModel

	// Logger is the optional structured logger.
	Logger *slog.Logger
}

// PointToPoint is a pair of [*Device] connected by a full-duplex link.
//
// The zero value is not ready to use; construct using [NewPointToPoint].
type PointToPoint struct {
	// left is the left device.
	left *Device

	// right is the right device.
	right *Device
}

// NewPointToPoint creates a new [*PointToPoint] using the given scheduler.
func NewPointToPoint(sched *vclock.Scheduler, config *PointToPointConfig) *PointToPoint {
	left := newDevice(sched, config.LeftAddr, config.Logger)
	right := newDevice(sched, config.RightAddr, config.Logger)
	left.out = link.New(sched, &link.Config{
		Rate:       config.Rate,
		Delay:      config.Delay,
		ErrorModel: config.RightErrorModel,
		Logger:     config.Logger,
	}, right.demux)
	right.in = left.out
	right.out = link.New(sched, &link.Config{
		Rate:       config.Rate,
		Delay:      config.Delay,
		ErrorModel: config.LeftErrorModel,
		Logger:     config.Logger,
	}, left.demux)
	left.in = right.out
	return &PointToPoint{left: left, right: right}
}

// Left returns the left [*Device].
func (p *PointToPoint) Left() *Device {
	return p.left
}

// Right returns the right [*Device].
func (p *PointToPoint) Right() *Device {
	return p.right
}

// portHandler handles packets delivered to a port.
type portHandler interface {
	handle(pkt *Packet)
}

// Device is a network device attached to a [*PointToPoint].
type Device struct {
	// addr is the device address.
	addr netip.Addr

	// in is the link delivering packets to this device.
	in *link.Link

	// logger is the optional logger.
	logger *slog.Logger

	// nextport is the next ephemeral port.
	nextport uint16

	// out is the link carrying packets sent by this device.
	out *link.Link

	// ports contains the open ports.
	ports map[uint16]portHandler

	// sched is the virtual-time scheduler.
	sched *vclock.Scheduler
}

// firstEphemeralPort is the first port used by [*Device.NewTCPConn].
const firstEphemeralPort = 49152

func newDevice(sched *vclock.Scheduler, addr netip.Addr, logger *slog.Logger) *Device {
	return &Device{
		addr:     addr,
		logger:   logger,
		nextport: firstEphemeralPort,
		ports:    map[uint16]portHandler{},
		sched:    sched,
	}
}

// Addr returns the device address.
func (d *Device) Addr() netip.Addr {
	return d.addr
}

// OnDrop registers a callback invoked when the receive error model
// of this device drops a packet.
func (d *Device) OnDrop(fn func(pkt *Packet)) {
	d.in.OnDrop(fn)
}

// RxStats returns the statistics of the link delivering packets to this device.
func (d *Device) RxStats() link.Stats {
	return d.in.Stats()
}

// Listen creates a [*Sink] listening on the given port.
func (d *Device) Listen(port uint16) (*Sink, error) {
	if port == 0 {
		return nil, EINVAL
	}
	if _, found := d.ports[port]; found {
		return nil, EADDRINUSE
	}
	sink := newSink(d, port)
	d.ports[port] = sink
	d.logOpen(netip.AddrPortFrom(d.addr, port))
	return sink, nil
}

// NewTCPConn creates an unconnected [*TCPConn] bound to an ephemeral port.
func (d *Device) NewTCPConn(config *TCPConnConfig) (*TCPConn, error) {
	port, err := d.newEphemeralPort()
	if err != nil {
		return nil, err
	}
	conn := newTCPConn(d, port, config)
	d.ports[port] = conn
	d.logOpen(netip.AddrPortFrom(d.addr, port))
	return conn, nil
}

// newEphemeralPort returns the next free ephemeral port.
func (d *Device) newEphemeralPort() (uint16, error) {
	for d.nextport < math.MaxUint16 {
		port := d.nextport
		d.nextport++
		if _, found := d.ports[port]; !found {
			return port, nil
		}
	}
	return 0, EADDRINUSE
}

// closePort removes a port from the demux table.
func (d *Device) closePort(port uint16) {
	if _, found := d.ports[port]; !found {
		return
	}
	delete(d.ports, port)
	if d.logger != nil {
		d.logger.Debug("portClose", slog.String("localAddr", netip.AddrPortFrom(d.addr, port).String()))
	}
}

// send transmits a packet on the outgoing link.
func (d *Device) send(pkt *Packet) {
	d.out.Send(pkt)
}

// demux delivers an incoming packet to the proper port.
func (d *Device) demux(pkt *Packet) {
	if pkt.DstAddr != d.addr {
		return
	}
	if handler := d.ports[pkt.DstPort]; handler != nil {
		handler.handle(pkt)
		return
	}
	if pkt.Flags&packet.TCPFlagRST == 0 {
		d.send(&Packet{
			SrcAddr:    d.addr,
			DstAddr:    pkt.SrcAddr,
			IPProtocol: packet.IPProtocolTCP,
			SrcPort:    pkt.DstPort,
			DstPort:    pkt.SrcPort,
			Flags:      packet.TCPFlagRST,
		})
	}
}

func (d *Device) logOpen(addr netip.AddrPort) {
	if d.logger != nil {
		d.logger.Debug("portOpen", slog.String("localAddr", addr.String()))
	}
}
