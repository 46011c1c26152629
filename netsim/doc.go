// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package netsim provides a minimal virtual-time network substrate
that paced senders can use as their transport.

# Usage and Features

The [NewPointToPoint] function creates two [*Device] connected by a
full-duplex link with a given data rate and propagation delay, on top
of a [*vclock.Scheduler]. Each direction may have a receive error
model (see the [netsim/link] package) dropping packets on arrival.

On the right device, [*Device.Listen] creates a [*Sink], which accepts
connections and discards the data it receives. On the left device,
[*Device.NewTCPConn] creates a [*TCPConn], which provides:

- Connect, to start the handshake with the sink;

- Send, which is all-or-nothing and returns [EWOULDBLOCK] when the
send buffer is full (backpressure);

- OnSendBufferAvailable, to be notified once when acknowledged data
frees some buffer space;

- OnError, to learn about asynchronous failures such as a peer reset;

- OnCongestionWindow, to observe the window used for transmission.

Nothing here blocks: every operation returns immediately and its
consequences are scheduled as events in virtual time. All callbacks
run on the goroutine driving the scheduler.

The errors returned by these types are the same [syscall.Errno] the
kernel would generate in similar cases (we use the [x/sys] repository
to pull system-dependent error values).

# Design Documents

This package has no design documents for now.
*/
package netsim
