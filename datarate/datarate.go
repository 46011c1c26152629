// SPDX-License-Identifier: GPL-3.0-or-later

// Package datarate contains the [DataRate] type.
package datarate

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DataRate is a data transfer rate in bits per second.
type DataRate int64

const (
	// BitsPerSecond is the bit/s unit.
	BitsPerSecond DataRate = 1

	// KilobitsPerSecond is like [BitsPerSecond] but for kbit/s.
	KilobitsPerSecond DataRate = 1000

	// MegabitsPerSecond is like [KilobitsPerSecond] but for Mbit/s.
	MegabitsPerSecond DataRate = 1000_000

	// GigabitsPerSecond is like [MegabitsPerSecond] but for Gbit/s.
	GigabitsPerSecond DataRate = 1000_000_000
)

// BytesPerSecond returns the rate expressed in bytes per second.
func (r DataRate) BytesPerSecond() float64 {
	return float64(r) / 8
}

// TxTime returns the time required to transmit the given number of
// bytes at this rate, i.e., bytes*8/r seconds. The result is zero when
// the rate is not positive.
func (r DataRate) TxTime(bytes int) time.Duration {
	if r <= 0 || bytes <= 0 {
		return 0
	}
	bits := int64(bytes) * 8
	if bits <= math.MaxInt64/int64(time.Second) {
		return time.Duration(bits * int64(time.Second) / int64(r))
	}
	return time.Duration(float64(bits) / float64(r) * float64(time.Second))
}

// String returns the largest exact unit representation (e.g., "5Mbps").
func (r DataRate) String() string {
	switch {
	case r != 0 && r%GigabitsPerSecond == 0:
		return fmt.Sprintf("%dGbps", r/GigabitsPerSecond)
	case r != 0 && r%MegabitsPerSecond == 0:
		return fmt.Sprintf("%dMbps", r/MegabitsPerSecond)
	case r != 0 && r%KilobitsPerSecond == 0:
		return fmt.Sprintf("%dkbps", r/KilobitsPerSecond)
	default:
		return fmt.Sprintf("%dbps", int64(r))
	}
}

// ErrSyntax indicates that a data rate string could not be parsed.
var ErrSyntax = errors.New("datarate: invalid syntax")

// units maps suffixes to multipliers in bit/s. Longer suffixes
// must be matched first, see [Parse].
var units = []struct {
	suffix string
	mult   float64
}{
	{"Gbps", 1e9},
	{"GBps", 8e9},
	{"Gb/s", 1e9},
	{"GB/s", 8e9},
	{"Mbps", 1e6},
	{"MBps", 8e6},
	{"Mb/s", 1e6},
	{"MB/s", 8e6},
	{"kbps", 1e3},
	{"Kbps", 1e3},
	{"kBps", 8e3},
	{"KBps", 8e3},
	{"kb/s", 1e3},
	{"Kb/s", 1e3},
	{"kB/s", 8e3},
	{"KB/s", 8e3},
	{"bps", 1},
	{"Bps", 8},
	{"b/s", 1},
	{"B/s", 8},
}

// Parse parses a rate such as "5Mbps", "3Mb/s", "1000kbps" or "125kBps".
//
// Lowercase "b" means bits and uppercase "B" means bytes. A bare number
// is interpreted as bit/s. The result must be positive.
func Parse(s string) (DataRate, error) {
	s = strings.TrimSpace(s)
	mult := 1.0
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			mult = u.mult
			break
		}
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	rate := value * mult
	if rate < 1 || rate > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %q out of range", ErrSyntax, s)
	}
	return DataRate(math.Round(rate)), nil
}

// MustParse is like [Parse] but panics on error.
func MustParse(s string) DataRate {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// MarshalText implements [encoding.TextMarshaler].
func (r DataRate) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler] using [Parse].
func (r *DataRate) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
