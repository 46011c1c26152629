// SPDX-License-Identifier: GPL-3.0-or-later

package pacer

import "strconv"

// Budget is the total number of bytes a session may send.
//
// The zero value is a bounded budget of zero bytes, which means
// "send nothing". Use [Unlimited] for sessions without a bound.
type Budget struct {
	bytes     uint64
	unlimited bool
}

// Unlimited is the [Budget] of sessions that send until stopped.
var Unlimited = Budget{unlimited: true}

// Bytes returns a [Budget] bounded to the given number of bytes.
func Bytes(n uint64) Budget {
	return Budget{bytes: n}
}

// Bounded returns whether the budget has a bound.
func (b Budget) Bounded() bool {
	return !b.unlimited
}

// Limit returns the bound and whether the budget is bounded.
func (b Budget) Limit() (uint64, bool) {
	return b.bytes, !b.unlimited
}

// remaining returns how many bytes may still be sent after sent bytes.
func (b Budget) remaining(sent uint64) uint64 {
	if sent >= b.bytes {
		return 0
	}
	return b.bytes - sent
}

// String returns "unlimited" or the number of bytes.
func (b Budget) String() string {
	if b.unlimited {
		return "unlimited"
	}
	return strconv.FormatUint(b.bytes, 10)
}
