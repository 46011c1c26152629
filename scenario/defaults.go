// SPDX-License-Identifier: GPL-3.0-or-later

package scenario

import (
	"net/netip"
	"time"

	"github.com/rbmk-project/pacesim/datarate"
	"github.com/rbmk-project/pacesim/netsim/link"
	"github.com/rbmk-project/pacesim/pacer"
)

// Params contains the knobs of the default experiment.
type Params struct {
	// LinkRate is the rate of the access link.
	LinkRate datarate.DataRate

	// BottleneckRate is the rate of the bottleneck link.
	BottleneckRate datarate.DataRate

	// Delay is the propagation delay of every link.
	Delay time.Duration

	// ErrorRate is the per-byte receive error rate at the sinks.
	ErrorRate float64

	// Seed seeds the error models.
	Seed uint64

	// StopAt is when the simulation ends.
	StopAt time.Duration
}

// Defaults returns the default experiment parameters.
func Defaults() Params {
	return Params{
		LinkRate:       5 * datarate.MegabitsPerSecond,
		BottleneckRate: 3 * datarate.MegabitsPerSecond,
		Delay:          2 * time.Millisecond,
		ErrorRate:      0.00001,
		Seed:           1,
		StopAt:         20 * time.Second,
	}
}

// DefaultSessions returns the sessions of the default experiment:
//
//   - "n2-n4" sends a 1000-byte budget in 1040-byte packets at 1Mbps
//     from 10.1.4.2 to 10.1.4.1:8080 starting at 2s, tracing the
//     congestion window;
//
//   - "n1-n0" sends a 10000-byte budget in 1040-byte packets at 1Mbps
//     from 10.1.1.2 to 10.1.1.1:8081 over the bottleneck link,
//     starting at 5s and stopping at 20s.
func DefaultSessions(params Params) []*SessionConfig {
	return []*SessionConfig{{
		Name:       "n2-n4",
		ClientAddr: netip.MustParseAddr("10.1.4.2"),
		SinkAddr:   netip.MustParseAddrPort("10.1.4.1:8080"),
		LinkRate:   params.LinkRate,
		LinkDelay:  params.Delay,
		ErrorRate:  params.ErrorRate,
		ErrorUnit:  link.ErrorUnitByte,
		Seed:       params.Seed,
		PacketSize: 1040,
		Budget:     pacer.Bytes(1000),
		Rate:       datarate.MegabitsPerSecond,
		StartAt:    2 * time.Second,
		TraceCwnd:  true,
	}, {
		Name:       "n1-n0",
		ClientAddr: netip.MustParseAddr("10.1.1.2"),
		SinkAddr:   netip.MustParseAddrPort("10.1.1.1:8081"),
		LinkRate:   params.BottleneckRate,
		LinkDelay:  params.Delay,
		ErrorRate:  params.ErrorRate,
		ErrorUnit:  link.ErrorUnitByte,
		Seed:       params.Seed + 1,
		PacketSize: 1040,
		Budget:     pacer.Bytes(10000),
		Rate:       datarate.MegabitsPerSecond,
		StartAt:    5 * time.Second,
		StopAt:     20 * time.Second,
	}}
}

// AddDefaultSessions adds [DefaultSessions] to the scenario.
func (s *Scenario) AddDefaultSessions(params Params) error {
	for _, config := range DefaultSessions(params) {
		if _, err := s.AddSession(config); err != nil {
			return err
		}
	}
	return nil
}
