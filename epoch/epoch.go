// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package epoch aggregates spent subscription funds into fixed-size time
// windows so that the claimant can collect them without iterating
// subscriptions.
//
// A funding streak from time s to expiry x with scaled flow f credits f to
// every epoch bucket for each covered unit in (s, x); the bucket holding x
// additionally receives a residual topping the streak's total credit up to
// its exact deposit. Full-epoch coverage is tracked as flow deltas rather
// than per-epoch sums, so scheduling and claiming both cost O(touched
// buckets), never O(subscriptions) and never O(elapsed epochs).
//
// All bucket values carry the [fund.MultiplierBase] scaling; division happens
// once, at claim time, and its remainder is carried to the next claim.
//
// A Tracker is not thread safe.
package epoch

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/ava-labs/subtime/fund"
	"github.com/ava-labs/subtime/intmath"
)

// ErrZeroEpochSize is returned by [New].
var ErrZeroEpochSize = errors.New("zero epoch size")

// A Tracker accumulates claimable funds per epoch.
type Tracker struct {
	size uint64
	// processed is the first epoch index not yet claimed; all buckets below
	// it have been folded into claimed+carry and deleted.
	processed uint64
	// flow is the aggregate full-epoch flow as of `processed`.
	flow fund.Flow
	// carry is the sub-[fund.MultiplierBase] remainder of the last claim.
	carry fund.Amount
	// claimed is the running total of claimed token units.
	claimed fund.Amount
	epochs  map[uint64]*bucket
}

// A bucket aggregates the claim-relevant activity of one epoch. In and Out
// pairs are separate monotonic accumulators rather than one signed value;
// their difference is non-negative by construction whenever the epoch closes.
type bucket struct {
	// flowIn/flowOut are deltas to the aggregate flow of streaks covering
	// whole epochs, applied when this epoch begins.
	flowIn, flowOut fund.Flow
	// partialIn/partialOut are scaled funds from streak units that cover
	// only part of this epoch.
	partialIn, partialOut fund.Amount
	// residualIn/residualOut are scaled funds settling a streak's exact
	// deposit at its expiry or cancellation.
	residualIn, residualOut fund.Amount
	// starting/expiring count streaks scheduled to start or expire in this
	// epoch.
	starting, expiring uint64
}

// New constructs a [Tracker] over windows of `size` time units.
func New(size uint64) (*Tracker, error) {
	if size == 0 {
		return nil, ErrZeroEpochSize
	}
	return &Tracker{
		size:   size,
		epochs: make(map[uint64]*bucket),
	}, nil
}

// Size returns the epoch size in time units.
func (t *Tracker) Size() uint64 {
	return t.size
}

// Index returns the epoch index holding the time unit.
func (t *Tracker) Index(unit uint64) uint64 {
	return unit / t.size
}

// Claimed returns the running total of claimed funds.
func (t *Tracker) Claimed() fund.Amount {
	return t.claimed
}

func (t *Tracker) bucket(e uint64) *bucket {
	b, ok := t.epochs[e]
	if !ok {
		b = new(bucket)
		t.epochs[e] = b
	}
	return b
}

// endOf returns the first time unit after epoch `e`, saturating at the
// maximum representable unit.
func (t *Tracker) endOf(e uint64) uint64 {
	end, err := intmath.Mul(e+1, t.size)
	if err != nil {
		return math.MaxUint64
	}
	return end
}

// creditUnits books `f` per unit of [from, until) into the In or Out sides of
// the affected buckets.
func (t *Tracker) creditUnits(from, until uint64, f fund.Flow, out bool) error {
	if from >= until {
		return nil
	}
	eFrom, eUntil := t.Index(from), t.Index(until)

	head := min(until, t.endOf(eFrom)) - from
	if err := t.addPartial(eFrom, uint64(f), head, out); err != nil {
		return err
	}
	if eUntil == eFrom {
		return nil
	}

	// Epochs in [eFrom+1, eUntil) are fully covered; book them as flow
	// deltas. The pair is booked even when the span is empty as the two
	// sides cancel within the single affected bucket.
	in, spanOut := &t.bucket(eFrom+1).flowIn, &t.bucket(eUntil).flowOut
	if out {
		in, spanOut = &t.bucket(eFrom+1).flowOut, &t.bucket(eUntil).flowIn
	}
	var err error
	if *in, err = intmath.Add(*in, f); err != nil {
		return err
	}
	if *spanOut, err = intmath.Add(*spanOut, f); err != nil {
		return err
	}

	tail := until - eUntil*t.size
	return t.addPartial(eUntil, uint64(f), tail, out)
}

func (t *Tracker) addPartial(e, f, units uint64, out bool) error {
	scaled, err := intmath.Mul(f, units)
	if err != nil {
		return err
	}
	b := t.bucket(e)
	dst := &b.partialIn
	if out {
		dst = &b.partialOut
	}
	*dst, err = intmath.Add(*dst, fund.Amount(scaled))
	return err
}

// residualOf returns the scaled deposit remainder not covered by the per-unit
// credits of a streak running from `start` to `expiry`.
func residualOf(start, expiry uint64, deposit fund.Amount, f fund.Flow) (fund.Amount, error) {
	scaled, err := deposit.Scale()
	if err != nil {
		return 0, err
	}
	var units uint64
	if expiry > start {
		units = expiry - start - 1
	}
	credited, err := intmath.Mul(units, uint64(f))
	if err != nil {
		return 0, err
	}
	return intmath.BoundedSubtract(scaled, fund.Amount(credited), 0), nil
}

func (t *Tracker) addResidual(e uint64, r fund.Amount, out bool) error {
	b := t.bucket(e)
	dst := &b.residualIn
	if out {
		dst = &b.residualOut
	}
	var err error
	*dst, err = intmath.Add(*dst, r)
	return err
}

// Schedule books the claim-side projection of a new streak running from
// `start` until `expiry` with deposit `deposit` and scaled flow `f`. Per-unit
// credits begin one unit after the streak start; the expiry bucket receives
// the residual that tops the total credit up to the exact deposit.
func (t *Tracker) Schedule(start, expiry uint64, deposit fund.Amount, f fund.Flow) error {
	if expiry < start {
		return fmt.Errorf("streak expiry %d before start %d", expiry, start)
	}
	if err := t.creditUnits(start+1, expiry, f, false); err != nil {
		return err
	}
	r, err := residualOf(start, expiry, deposit, f)
	if err != nil {
		return err
	}
	if err := t.addResidual(t.Index(expiry), r, false); err != nil {
		return err
	}
	t.bucket(t.Index(start)).starting++
	t.bucket(t.Index(expiry)).expiring++
	return nil
}

// CancelFrom retracts, as of `now`, the not-yet-closed portion of a streak
// previously booked by [Tracker.Schedule] (or re-booked by [Tracker.Resume])
// with exactly the given parameters: the per-unit credits of (now, expiry)
// and the expiry residual. Credits for units at or before `now` are spent
// funds and stay. The caller MUST only cancel streaks that are still active,
// i.e. start <= now < expiry.
func (t *Tracker) CancelFrom(now, start, expiry uint64, deposit fund.Amount, f fund.Flow) error {
	if err := t.creditUnits(now+1, expiry, f, true); err != nil {
		return err
	}
	r, err := residualOf(start, expiry, deposit, f)
	if err != nil {
		return err
	}
	if err := t.addResidual(t.Index(expiry), r, true); err != nil {
		return err
	}
	b := t.bucket(t.Index(expiry))
	b.expiring = intmath.BoundedSubtract(b.expiring, 1, 0)
	return nil
}

// Resume books the continuation of a streak whose future portion was just
// retracted by [Tracker.CancelFrom]: per-unit credits for (now, expiry) and a
// residual computed over the whole streak [start, expiry), acknowledging that
// the units in (start, now] remain credited from before.
func (t *Tracker) Resume(now, start, expiry uint64, deposit fund.Amount, f fund.Flow) error {
	if err := t.creditUnits(now+1, expiry, f, false); err != nil {
		return err
	}
	r, err := residualOf(start, expiry, deposit, f)
	if err != nil {
		return err
	}
	if err := t.addResidual(t.Index(expiry), r, false); err != nil {
		return err
	}
	t.bucket(t.Index(expiry)).expiring++
	return nil
}

// SettleStreak books, at `now`, the remainder owed to the claimant by a
// streak that is being terminated early (cancellation) or rolled over under
// new terms (multiplier change): `owed` minus the per-unit credits already
// booked for (start, now], floored at zero.
func (t *Tracker) SettleStreak(now, start uint64, owed fund.Amount, f fund.Flow) error {
	scaled, err := owed.Scale()
	if err != nil {
		return err
	}
	credited, err := intmath.Mul(now-start, uint64(f))
	if err != nil {
		return err
	}
	r := intmath.BoundedSubtract(scaled, fund.Amount(credited), 0)
	return t.addResidual(t.Index(now), r, false)
}

// Claim folds every epoch that closed strictly before the one holding `now`
// into the claimable total, advancing the processed-epoch cursor. It returns
// the amount claimable by this call and the running total, never failing on a
// zero claim. Epoch 0 only closes once epoch 1 begins.
func (t *Tracker) Claim(now uint64) (claimedNow, totalClaimed fund.Amount, _ error) {
	eNow := t.Index(now)
	if eNow <= t.processed {
		return 0, t.claimed, nil
	}

	var keys []uint64
	for e := range t.epochs {
		if e >= t.processed && e < eNow {
			keys = append(keys, e)
		}
	}
	slices.Sort(keys)

	scaled := t.carry
	cursor := t.processed
	accrue := func(epochs uint64) error {
		perEpoch, err := intmath.Mul(uint64(t.flow), t.size)
		if err != nil {
			return err
		}
		span, err := intmath.Mul(perEpoch, epochs)
		if err != nil {
			return err
		}
		scaled, err = intmath.Add(scaled, fund.Amount(span))
		return err
	}

	for _, e := range keys {
		if err := accrue(e - cursor); err != nil {
			return 0, t.claimed, err
		}
		b := t.epochs[e]

		var err error
		if t.flow, err = intmath.Add(t.flow, b.flowIn); err != nil {
			return 0, t.claimed, err
		}
		t.flow = intmath.BoundedSubtract(t.flow, b.flowOut, 0)

		if err := accrue(1); err != nil {
			return 0, t.claimed, err
		}
		in, err := intmath.Add(b.partialIn, b.residualIn)
		if err != nil {
			return 0, t.claimed, err
		}
		if scaled, err = intmath.Add(scaled, in); err != nil {
			return 0, t.claimed, err
		}
		out, err := intmath.Add(b.partialOut, b.residualOut)
		if err != nil {
			return 0, t.claimed, err
		}
		scaled = intmath.BoundedSubtract(scaled, out, 0)

		delete(t.epochs, e)
		cursor = e + 1
	}
	if err := accrue(eNow - cursor); err != nil {
		return 0, t.claimed, err
	}

	claimedNow = scaled / fund.Amount(fund.MultiplierBase)
	t.carry = scaled % fund.Amount(fund.MultiplierBase)
	totalClaimed, err := intmath.Add(t.claimed, claimedNow)
	if err != nil {
		return 0, t.claimed, err
	}
	t.claimed = totalClaimed
	t.processed = eNow
	return claimedNow, totalClaimed, nil
}
