// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import "github.com/ava-labs/subtime/fund"

// A Record is the stored state of one subscription. All derived quantities
// (activity, expiry, spent/unspent, withdrawable) are pure functions of a
// Record, the current time unit and the injected rate.
type Record struct {
	// MintedAt is the time unit of creation; immutable once set.
	MintedAt uint64
	// StreakStartedAt is the start of the current uninterrupted funding
	// streak. It resets on reactivation after expiry and, in the streak
	// model, on a multiplier change. The flat model pins it to
	// LastDepositAt.
	StreakStartedAt uint64
	// LastDepositAt is the time unit of the most recent deposit-affecting
	// operation. Withdrawals do not touch it.
	LastDepositAt uint64
	// TotalDeposited is the net amount ever contributed: it grows with every
	// deposit and shrinks only via withdrawal. Invariant:
	// CurrentDeposit <= TotalDeposited.
	TotalDeposited fund.Amount
	// CurrentDeposit is the deposit counted from StreakStartedAt.
	// Consumption is not subtracted from it; only withdrawals, streak resets
	// and multiplier changes reduce it.
	CurrentDeposit fund.Amount
	// LockedAmount is the minimum balance that cannot be withdrawn. It is
	// recomputed on every deposit-affecting mutation and intentionally left
	// untouched by withdrawals.
	LockedAmount fund.Amount
	// Multiplier scales the injected rate; see [fund.MultiplierBase].
	Multiplier fund.Multiplier
}
