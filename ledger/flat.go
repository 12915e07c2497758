// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"github.com/ava-labs/subtime/fund"
	"github.com/ava-labs/subtime/hook"
)

// Flat is the simpler model variant: every extension re-bases the remaining
// deposit onto a streak starting at the deposit time, and the multiplier is
// immutable once set at creation.
type Flat struct {
	core
}

var _ Ledger = (*Flat)(nil)

// NewFlat constructs a [Flat] ledger. `lockBps` is the fraction of the
// unspent balance, in [fund.LockBase] units, withheld from withdrawal.
func NewFlat(hooks hook.Points, lockBps fund.Bips) *Flat {
	return &Flat{core: newCore(hooks, lockBps)}
}

// Extend adds `amount` to the subscription's deposit. The remaining deposit
// is re-based onto a streak starting now; an expired subscription is
// reactivated with the extension amount alone.
func (l *Flat) Extend(id fund.TokenID, amount fund.Amount) (Extension, error) {
	return l.extend(id, amount, true)
}
