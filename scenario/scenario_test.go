// SPDX-License-Identifier: GPL-3.0-or-later

package scenario_test

import (
	"bytes"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/rbmk-project/pacesim/datarate"
	"github.com/rbmk-project/pacesim/netsim/link"
	"github.com/rbmk-project/pacesim/pacer"
	"github.com/rbmk-project/pacesim/scenario"
	"github.com/rbmk-project/pacesim/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionConfig() *scenario.SessionConfig {
	return &scenario.SessionConfig{
		Name:       "test",
		ClientAddr: netip.MustParseAddr("10.1.4.2"),
		SinkAddr:   netip.MustParseAddrPort("10.1.4.1:8080"),
		LinkRate:   5 * datarate.MegabitsPerSecond,
		LinkDelay:  2 * time.Millisecond,
		PacketSize: 1040,
		Budget:     pacer.Bytes(1000),
		Rate:       datarate.MegabitsPerSecond,
		StartAt:    2 * time.Second,
		TraceCwnd:  true,
	}
}

func TestSessionConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *scenario.SessionConfig)
	}{
		{"empty name", func(cfg *scenario.SessionConfig) { cfg.Name = "" }},
		{"invalid client", func(cfg *scenario.SessionConfig) { cfg.ClientAddr = netip.Addr{} }},
		{"invalid sink", func(cfg *scenario.SessionConfig) { cfg.SinkAddr = netip.AddrPort{} }},
		{"zero sink port", func(cfg *scenario.SessionConfig) {
			cfg.SinkAddr = netip.AddrPortFrom(cfg.SinkAddr.Addr(), 0)
		}},
		{"shared address", func(cfg *scenario.SessionConfig) { cfg.ClientAddr = cfg.SinkAddr.Addr() }},
		{"zero link rate", func(cfg *scenario.SessionConfig) { cfg.LinkRate = 0 }},
		{"negative delay", func(cfg *scenario.SessionConfig) { cfg.LinkDelay = -1 }},
		{"error rate too large", func(cfg *scenario.SessionConfig) { cfg.ErrorRate = 1.5 }},
		{"negative start", func(cfg *scenario.SessionConfig) { cfg.StartAt = -time.Second }},
		{"stop before start", func(cfg *scenario.SessionConfig) { cfg.StopAt = time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newSessionConfig()
			tt.mutate(cfg)
			sc := scenario.New()
			defer sc.Close()
			_, err := sc.AddSession(cfg)
			assert.ErrorIs(t, err, scenario.ErrInvalidSession)
			assert.Empty(t, sc.Sessions())
		})
	}

	t.Run("invalid sender parameters", func(t *testing.T) {
		cfg := newSessionConfig()
		cfg.PacketSize = 0
		sc := scenario.New()
		defer sc.Close()
		_, err := sc.AddSession(cfg)
		assert.ErrorIs(t, err, pacer.ErrInvalidConfiguration)
	})

	t.Run("duplicate name", func(t *testing.T) {
		sc := scenario.New()
		defer sc.Close()
		sc.MustAddSession(newSessionConfig())
		_, err := sc.AddSession(newSessionConfig())
		assert.ErrorIs(t, err, scenario.ErrDuplicateSession)
		assert.ErrorContains(t, err, newSessionConfig().Name)
		assert.Panics(t, func() { sc.MustAddSession(newSessionConfig()) })
	})
}

func TestSingleSession(t *testing.T) {
	sc := scenario.New()
	defer sc.Close()
	sess := sc.MustAddSession(newSessionConfig())
	var cwnd []uint32
	sess.Traces().Cwnd.Subscribe(func(ev trace.CwndEvent) {
		assert.Greater(t, ev.Time, 2*time.Second)
		cwnd = append(cwnd, ev.New)
	})

	summaries := sc.Run(20 * time.Second)

	require.Len(t, summaries, 1)
	assert.Equal(t, scenario.Summary{
		Name:          "test",
		State:         pacer.StateCompleted,
		PacketsSent:   1,
		BytesSent:     1000,
		BytesReceived: 1000,
	}, summaries[0])
	assert.Equal(t, []uint32{536, 1072, 1608}, cwnd)
	assert.True(t, sess.Conn().Established())
	assert.Equal(t, 20*time.Second, sc.Scheduler().Now())
}

func TestStopClosesConnection(t *testing.T) {
	cfg := newSessionConfig()
	cfg.Budget = pacer.Unlimited
	cfg.StopAt = 3 * time.Second
	sc := scenario.New()
	defer sc.Close()
	sess := sc.MustAddSession(cfg)

	summaries := sc.Run(20 * time.Second)

	assert.Equal(t, pacer.StateStopped, summaries[0].State)
	// one packet every 8.32ms in [2s, 3s)
	assert.Equal(t, uint64(121), summaries[0].PacketsSent)
	assert.Equal(t, 0, sess.Sink().Peers())
	assert.False(t, sess.Conn().Established())
}

func TestDropsAreTraced(t *testing.T) {
	cfg := newSessionConfig()
	cfg.ErrorModel = &link.ListErrorModel{Indexes: []int{1}}
	sc := scenario.New()
	defer sc.Close()
	sess := sc.MustAddSession(cfg)
	var out bytes.Buffer
	sc.AttachWriter(&trace.Writer{W: &out})
	var drops []time.Duration
	sess.Traces().Drop.Subscribe(func(ev trace.DropEvent) { drops = append(drops, ev.Time) })

	summaries := sc.Run(20 * time.Second)

	require.Len(t, drops, 1)
	assert.Equal(t, 1, summaries[0].Drops)
	assert.Equal(t, 1, summaries[0].Retransmits)
	assert.Equal(t, uint64(1000), summaries[0].BytesReceived)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	var dropLines int
	for _, line := range lines {
		if strings.HasPrefix(line, "RxDrop at ") {
			dropLines++
			continue
		}
		assert.Contains(t, line, "\t")
	}
	assert.Equal(t, 1, dropLines)
}

func TestAttachWriterHonoursTraceCwnd(t *testing.T) {
	cfg := newSessionConfig()
	cfg.TraceCwnd = false
	sc := scenario.New()
	defer sc.Close()
	sc.MustAddSession(cfg)
	var out bytes.Buffer
	sc.AttachWriter(&trace.Writer{W: &out})

	sc.Run(20 * time.Second)

	assert.Empty(t, out.String())
}

func TestDefaultSessions(t *testing.T) {
	params := scenario.Defaults()
	assert.Equal(t, 20*time.Second, params.StopAt)
	assert.Equal(t, 0.00001, params.ErrorRate)

	configs := scenario.DefaultSessions(params)
	require.Len(t, configs, 2)
	assert.Equal(t, "n2-n4", configs[0].Name)
	assert.Equal(t, 5*datarate.MegabitsPerSecond, configs[0].LinkRate)
	assert.True(t, configs[0].TraceCwnd)
	assert.Equal(t, "n1-n0", configs[1].Name)
	assert.Equal(t, 3*datarate.MegabitsPerSecond, configs[1].LinkRate)
	assert.Equal(t, 20*time.Second, configs[1].StopAt)

	params.ErrorRate = 0
	sc := scenario.New()
	defer sc.Close()
	require.NoError(t, sc.AddDefaultSessions(params))
	summaries := sc.Run(params.StopAt)

	require.Len(t, summaries, 2)
	assert.Equal(t, pacer.StateCompleted, summaries[0].State)
	assert.Equal(t, uint64(1000), summaries[0].BytesReceived)
	assert.Equal(t, pacer.StateCompleted, summaries[1].State)
	assert.Equal(t, uint64(10), summaries[1].PacketsSent)
	assert.Equal(t, uint64(10000), summaries[1].BytesReceived)
}

func TestClose(t *testing.T) {
	sc := scenario.New()
	sess := sc.MustAddSession(newSessionConfig())
	sc.Run(time.Second)

	require.NoError(t, sc.Close())
	require.NoError(t, sc.Close())
	assert.Equal(t, pacer.StateStopped, sess.Sender().State())
}
