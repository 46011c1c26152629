// SPDX-License-Identifier: GPL-3.0-or-later

package link

import (
	"math"
	"math/rand/v2"
)

// ErrorModel decides whether a received packet is corrupted.
type ErrorModel interface {
	Corrupt(pkt *Packet) bool
}

// ErrorUnit is the unit to which [*RateErrorModel] applies its rate.
type ErrorUnit int

const (
	// ErrorUnitByte applies the rate to each byte of the packet.
	ErrorUnitByte = ErrorUnit(iota)

	// ErrorUnitPacket applies the rate to the whole packet.
	ErrorUnitPacket
)

// RateErrorModel corrupts packets at a given rate.
//
// With [ErrorUnitByte], a packet of n bytes is corrupted with
// probability 1-(1-rate)^n. With [ErrorUnitPacket], it is
// corrupted with probability rate.
//
// Construct using [NewRateErrorModel].
type RateErrorModel struct {
	// rate is the error rate in [0, 1].
	rate float64

	// rng is the random number generator.
	rng *rand.Rand

	// unit is the error unit.
	unit ErrorUnit
}

var _ ErrorModel = &RateErrorModel{}

// NewRateErrorModel creates a [*RateErrorModel] using a deterministic
// random number generator seeded with the given seed. The rate is
// clamped to [0, 1].
func NewRateErrorModel(rate float64, unit ErrorUnit, seed uint64) *RateErrorModel {
	return &RateErrorModel{
		rate: min(max(rate, 0), 1),
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		unit: unit,
	}
}

// Corrupt implements [ErrorModel].
func (em *RateErrorModel) Corrupt(pkt *Packet) bool {
	if em.rate <= 0 {
		return false
	}
	prob := em.rate
	if em.unit == ErrorUnitByte {
		prob = 1 - math.Pow(1-em.rate, float64(pkt.Size()))
	}
	return em.rng.Float64() < prob
}

// ListErrorModel corrupts the packets whose zero-based receive
// index is in the list. It is useful to write deterministic tests.
type ListErrorModel struct {
	// Indexes contains the indexes of the packets to corrupt.
	Indexes []int

	// count is the number of packets seen so far.
	count int
}

var _ ErrorModel = &ListErrorModel{}

// Corrupt implements [ErrorModel].
func (em *ListErrorModel) Corrupt(pkt *Packet) bool {
	idx := em.count
	em.count++
	for _, v := range em.Indexes {
		if v == idx {
			return true
		}
	}
	return false
}
