// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics exports paced session traces as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rbmk-project/pacesim/pacer"
	"github.com/rbmk-project/pacesim/trace"
)

const (
	namespace    = "pacesim"
	sessionLabel = "session"
)

// Collector records per-session trace events.
//
// Construct using [New].
type Collector struct {
	PacketsSent      *prometheus.CounterVec
	BytesSent        *prometheus.CounterVec
	RxDrops          *prometheus.CounterVec
	CongestionWindow *prometheus.GaugeVec
	State            *prometheus.GaugeVec
	Transitions      *prometheus.CounterVec
}

// New creates a [*Collector] registering its metrics with the
// given registerer. A nil registerer creates unregistered metrics.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		PacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Packets written by the paced sender",
		}, []string{sessionLabel}),
		BytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Bytes written by the paced sender",
		}, []string{sessionLabel}),
		RxDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rx_drops_total",
			Help:      "Packets dropped by the receive error model of the sink",
		}, []string{sessionLabel}),
		CongestionWindow: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "congestion_window_bytes",
			Help:      "Latest congestion window of the session transport",
		}, []string{sessionLabel}),
		State: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sender_state",
			Help:      "Sender state (0 idle, 1 running, 2 stopped, 3 completed, 4 failed)",
		}, []string{sessionLabel}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sender_transitions_total",
			Help:      "Sender lifecycle transitions by target state",
		}, []string{sessionLabel, "state"}),
	}
}

// Observe subscribes the collector to the trace sources of a session.
// The returned function unsubscribes.
func (c *Collector) Observe(session string, hub *trace.Hub) (unsubscribe func()) {
	packets := c.PacketsSent.WithLabelValues(session)
	bytes := c.BytesSent.WithLabelValues(session)
	drops := c.RxDrops.WithLabelValues(session)
	cwnd := c.CongestionWindow.WithLabelValues(session)
	state := c.State.WithLabelValues(session)

	unsubs := []func(){
		hub.Tx.Subscribe(func(ev trace.TxEvent) {
			packets.Inc()
			bytes.Add(float64(ev.Bytes))
		}),
		hub.Drop.Subscribe(func(trace.DropEvent) {
			drops.Inc()
		}),
		hub.Cwnd.Subscribe(func(ev trace.CwndEvent) {
			cwnd.Set(float64(ev.New))
		}),
		hub.State.Subscribe(func(ev trace.StateEvent) {
			state.Set(float64(stateValue(ev.State)))
			c.Transitions.WithLabelValues(session, ev.State).Inc()
		}),
	}
	return func() {
		for _, fn := range unsubs {
			fn()
		}
	}
}

// stateValue maps a state name to the numeric [pacer.State].
func stateValue(name string) pacer.State {
	for st := pacer.StateIdle; st <= pacer.StateFailed; st++ {
		if st.String() == name {
			return st
		}
	}
	return pacer.StateIdle
}
