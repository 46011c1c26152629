//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/netem/blob/main/linkfwdfull.go
//

// Package link models a unidirectional point-to-point channel in virtual time.
package link

import (
	"log/slog"
	"time"

	"github.com/rbmk-project/pacesim/datarate"
	"github.com/rbmk-project/pacesim/netsim/packet"
	"github.com/rbmk-project/pacesim/vclock"
)

// Packet is the [packet.Packet] alias used by this package.
type Packet = packet.Packet

// Config configures a [*Link].
type Config struct {
	// Rate is the serialization rate. A zero value means
	// that serialization is instantaneous.
	Rate datarate.DataRate

	// Delay is the propagation delay.
	Delay time.Duration

	// ErrorModel is the optional receive error model.
	ErrorModel ErrorModel

	// Logger is the optional structured logger.
	Logger *slog.Logger
}

// Link is a unidirectional channel delivering packets to a
// receive function after serialization and propagation delay.
//
// Packets are serialized back-to-back in FIFO order. When a packet
// arrives, the receive [ErrorModel] may corrupt it, in which case the
// packet is dropped and [*Link.OnDrop] callbacks are invoked.
//
// The zero value is not ready to use; construct using [New].
type Link struct {
	// busyUntil is when the transmitter becomes idle again.
	busyUntil time.Duration

	// config is the link configuration.
	config Config

	// deliver is the receive function.
	deliver func(*Packet)

	// drops contains the drop callbacks.
	drops []func(*Packet)

	// sched is the virtual-time scheduler.
	sched *vclock.Scheduler

	// stats contains the link statistics.
	stats Stats
}

// Stats contains [*Link] statistics.
type Stats struct {
	// Sent is the number of packets handed to the link.
	Sent int

	// Delivered is the number of packets delivered.
	Delivered int

	// Dropped is the number of packets dropped by the error model.
	Dropped int
}

// New creates a new [*Link] delivering packets to deliver.
func New(sched *vclock.Scheduler, config *Config, deliver func(*Packet)) *Link {
	return &Link{
		config:  *config,
		deliver: deliver,
		sched:   sched,
	}
}

// OnDrop registers a callback invoked when the receive error model
// drops a packet. This is the equivalent of a "PhyRxDrop" trace.
func (lnk *Link) OnDrop(fn func(*Packet)) {
	lnk.drops = append(lnk.drops, fn)
}

// Stats returns the link statistics.
func (lnk *Link) Stats() Stats {
	return lnk.stats
}

// Send queues the packet for transmission and returns the virtual
// time at which the packet will reach the receiver.
func (lnk *Link) Send(pkt *Packet) time.Duration {
	lnk.stats.Sent++
	start := max(lnk.sched.Now(), lnk.busyUntil)
	lnk.busyUntil = start + lnk.config.Rate.TxTime(pkt.Size())
	arrival := lnk.busyUntil + lnk.config.Delay
	lnk.sched.At(arrival, func() { lnk.receive(pkt) })
	return arrival
}

// receive runs the error model and delivers or drops the packet.
func (lnk *Link) receive(pkt *Packet) {
	if lnk.config.ErrorModel != nil && lnk.config.ErrorModel.Corrupt(pkt) {
		lnk.stats.Dropped++
		if lnk.config.Logger != nil {
			lnk.config.Logger.Debug(
				"linkDrop",
				slog.String("packet", pkt.String()),
				slog.Duration("t", lnk.sched.Now()),
			)
		}
		for _, fn := range lnk.drops {
			fn(pkt)
		}
		return
	}
	lnk.stats.Delivered++
	if lnk.config.Logger != nil {
		lnk.config.Logger.Debug(
			"linkDeliver",
			slog.String("packet", pkt.String()),
			slog.Duration("t", lnk.sched.Now()),
		)
	}
	lnk.deliver(pkt)
}
