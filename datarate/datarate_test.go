// SPDX-License-Identifier: GPL-3.0-or-later

package datarate_test

import (
	"testing"
	"time"

	"github.com/rbmk-project/pacesim/datarate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  datarate.DataRate
		fails bool
	}{
		{input: "5Mbps", want: 5 * datarate.MegabitsPerSecond},
		{input: "3Mb/s", want: 3 * datarate.MegabitsPerSecond},
		{input: "1000kbps", want: datarate.MegabitsPerSecond},
		{input: "125kBps", want: datarate.MegabitsPerSecond},
		{input: "1.5Gbps", want: 1500 * datarate.MegabitsPerSecond},
		{input: " 64 bps ", want: 64},
		{input: "8B/s", want: 64},
		{input: "42", want: 42},
		{input: "", fails: true},
		{input: "fast", fails: true},
		{input: "0Mbps", fails: true},
		{input: "-1Mbps", fails: true},
		{input: "NaNbps", fails: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := datarate.Parse(tt.input)
			if tt.fails {
				require.Error(t, err)
				assert.ErrorIs(t, err, datarate.ErrSyntax)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMustParse(t *testing.T) {
	assert.Equal(t, 2*datarate.MegabitsPerSecond, datarate.MustParse("2Mbps"))
	assert.Panics(t, func() { datarate.MustParse("garbage") })
}

func TestTxTime(t *testing.T) {
	tests := []struct {
		name  string
		rate  datarate.DataRate
		bytes int
		want  time.Duration
	}{
		{"1040 bytes at 1Mbps", datarate.MegabitsPerSecond, 1040, 8320 * time.Microsecond},
		{"1000 bytes at 1Mbps", datarate.MegabitsPerSecond, 1000, 8 * time.Millisecond},
		{"1500 bytes at 5Mbps", 5 * datarate.MegabitsPerSecond, 1500, 2400 * time.Microsecond},
		{"one byte at 8bps", 8, 1, time.Second},
		{"zero bytes", datarate.MegabitsPerSecond, 0, 0},
		{"zero rate", 0, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rate.TxTime(tt.bytes))
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "5Mbps", (5 * datarate.MegabitsPerSecond).String())
	assert.Equal(t, "2Gbps", (2 * datarate.GigabitsPerSecond).String())
	assert.Equal(t, "1500kbps", (1500 * datarate.KilobitsPerSecond).String())
	assert.Equal(t, "1234bps", datarate.DataRate(1234).String())
	assert.Equal(t, "0bps", datarate.DataRate(0).String())
}

func TestBytesPerSecond(t *testing.T) {
	assert.Equal(t, 125000.0, datarate.MegabitsPerSecond.BytesPerSecond())
}

func TestText(t *testing.T) {
	var rate datarate.DataRate
	require.NoError(t, rate.UnmarshalText([]byte("3Mbps")))
	assert.Equal(t, 3*datarate.MegabitsPerSecond, rate)

	data, err := rate.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "3Mbps", string(data))

	assert.ErrorIs(t, rate.UnmarshalText([]byte("fast")), datarate.ErrSyntax)
	assert.Equal(t, 3*datarate.MegabitsPerSecond, rate)
}
