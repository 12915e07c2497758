// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"fmt"

	"github.com/ava-labs/subtime/fund"
	"github.com/ava-labs/subtime/hook"
	"github.com/ava-labs/subtime/intmath"
)

// Streak is the model variant that preserves the funding streak across
// extensions and supports changing the multiplier mid-subscription by closing
// the streak and opening a new one.
type Streak struct {
	core
}

var _ Ledger = (*Streak)(nil)

// NewStreak constructs a [Streak] ledger. `lockBps` is the fraction of the
// unspent balance, in [fund.LockBase] units, withheld from withdrawal.
func NewStreak(hooks hook.Points, lockBps fund.Bips) *Streak {
	return &Streak{core: newCore(hooks, lockBps)}
}

// Extend adds `amount` to the subscription's deposit without interrupting the
// streak. An expired subscription is reactivated with the extension amount
// alone.
func (l *Streak) Extend(id fund.TokenID, amount fund.Amount) (Extension, error) {
	return l.extend(id, amount, false)
}

// A MultiplierChange is an audit record of [Streak.ChangeMultiplier].
// OldMultiplier is populated even when the subscription was inactive.
type MultiplierChange struct {
	OldMultiplier, NewMultiplier           fund.Multiplier
	OldStreakStartedAt, NewStreakStartedAt uint64
	OldDeposit, NewDeposit                 fund.Amount
}

// ChangeMultiplier ends the current streak and starts a new one under `m`.
//
// For an active subscription the current time unit has already been paid for
// under the old multiplier, so the old streak is settled one unit ahead: the
// amount spent in the streak (current unit included) is removed from both the
// deposit and the lock, and the new streak starts at now+1 with the residual
// deposit. An inactive subscription is reset to an empty streak starting now.
func (l *Streak) ChangeMultiplier(id fund.TokenID, m fund.Multiplier) (wasActive bool, _ MultiplierChange, _ error) {
	rec, err := l.get(id)
	if err != nil {
		return false, MultiplierChange{}, err
	}
	if m == 0 {
		return false, MultiplierChange{}, fmt.Errorf("token %d: %w", id, ErrZeroMultiplier)
	}
	if _, err := fund.FlowOf(l.hooks.RatePerUnit(), m); err != nil {
		return false, MultiplierChange{}, fmt.Errorf("token %d: rate*multiplier: %w", id, err)
	}

	now := l.hooks.Now()
	active, err := l.isActive(rec, now)
	if err != nil {
		return false, MultiplierChange{}, err
	}

	change := MultiplierChange{
		OldMultiplier:      rec.Multiplier,
		NewMultiplier:      m,
		OldStreakStartedAt: rec.StreakStartedAt,
		OldDeposit:         rec.CurrentDeposit,
	}

	var (
		newStart              = now
		newCurrent, newLocked fund.Amount
	)
	if active {
		f, fErr := l.flow(rec)
		if fErr != nil {
			return false, MultiplierChange{}, fErr
		}
		spent, cErr := f.Consume(unitsInclCurrent(rec, now))
		if cErr != nil {
			return false, MultiplierChange{}, cErr
		}
		newStart = now + 1
		newCurrent = intmath.BoundedSubtract(rec.CurrentDeposit, spent, 0)
		newLocked = intmath.BoundedSubtract(rec.LockedAmount, spent, 0)
	}

	rec.StreakStartedAt = newStart
	rec.CurrentDeposit = newCurrent
	rec.LockedAmount = newLocked
	rec.Multiplier = m

	change.NewStreakStartedAt = newStart
	change.NewDeposit = newCurrent
	return active, change, nil
}
