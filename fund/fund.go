// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fund declares the units of subscription accounting and the
// fixed-point arithmetic that relates them.
//
// All formulas keep the [MultiplierBase] scaling factor in play until the
// final step so that exactly one integer division happens per derived value.
// Every such division truncates, as does the lock fraction, biasing rounding
// in favour of the subscriber over the claimant.
package fund

import (
	"github.com/holiman/uint256"

	"github.com/ava-labs/subtime/intmath"
)

// An Amount is a quantity of fungible tokens, denominated in the token's
// smallest unit.
type Amount uint64

// A TokenID identifies a subscription position. The id space is shared with
// the non-fungible identity ledger that records ownership.
type TokenID uint64

// A Multiplier scales the global consumption rate of an individual
// subscription. It is denominated in hundredths; see [MultiplierBase].
type Multiplier uint64

// A Bips is a fraction denominated in [LockBase], i.e. basis points.
type Bips uint64

const (
	// MultiplierBase is the [Multiplier] equivalent to 1x.
	MultiplierBase Multiplier = 100
	// LockBase is the [Bips] equivalent to the whole.
	LockBase Bips = 10_000
)

// A Flow is a per-time-unit consumption rate, pre-multiplied by a
// subscription's [Multiplier]. It therefore carries an implicit scaling of
// [MultiplierBase] that consumers MUST divide out, last, when converting to an
// [Amount].
type Flow uint64

// FlowOf returns the scaled consumption rate of a subscription with the given
// multiplier.
func FlowOf(rate Amount, m Multiplier) (Flow, error) {
	f, err := intmath.Mul(uint64(rate), uint64(m))
	if err != nil {
		return 0, err
	}
	return Flow(f), nil
}

// Consume returns the [Amount] drained by `f` over `units` time units, rounded
// down.
func (f Flow) Consume(units uint64) (Amount, error) {
	quo, _, err := intmath.MulDiv(units, uint64(f), uint64(MultiplierBase))
	return Amount(quo), err
}

// Funds returns the number of whole time units that `a` keeps a subscription
// with flow `f` active, rounded down. A zero flow funds nothing, sidestepping
// division by zero.
func (f Flow) Funds(a Amount) (uint64, error) {
	if f == 0 {
		return 0, nil
	}
	quo, _, err := intmath.MulDiv(uint64(a), uint64(MultiplierBase), uint64(f))
	return quo, err
}

// Scale returns `a` carrying the [MultiplierBase] scaling of a [Flow], for
// summation against per-unit flow credits.
func (a Amount) Scale() (Amount, error) {
	return intmath.Mul(a, Amount(MultiplierBase))
}

// LockOf returns the portion of `a` withheld by a lock of `bps` basis points,
// rounded down. Behaviour is undefined for `bps > LockBase`; the contract
// rejects such configurations.
func LockOf(a Amount, bps Bips) Amount {
	// The quotient cannot overflow: bps <= LockBase implies it is <= a.
	quo, _, _ := intmath.MulDiv(uint64(a), uint64(bps), uint64(LockBase)) //nolint:errcheck
	return Amount(quo)
}

// U256 returns the amount as a uint256 for compatibility with EVM-facing
// callers.
func (a Amount) U256() *uint256.Int {
	return uint256.NewInt(uint64(a))
}
