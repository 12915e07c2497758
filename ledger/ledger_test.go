// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/subtime/fund"
	"github.com/ava-labs/subtime/hook"
	"github.com/ava-labs/subtime/hook/hookstest"
	"github.com/ava-labs/subtime/intmath"
)

// variants runs `fn` against both model constructors for behaviour that the
// models share.
func variants(t *testing.T, lockBps fund.Bips, fn func(*testing.T, *hookstest.Stub, Ledger)) {
	t.Helper()
	tests := []struct {
		name string
		mk   func(hook.Points, fund.Bips) Ledger
	}{
		{"flat", func(h hook.Points, b fund.Bips) Ledger { return NewFlat(h, b) }},
		{"streak", func(h hook.Points, b fund.Bips) Ledger { return NewStreak(h, b) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hooks := &hookstest.Stub{Time: 1000, Rate: 10}
			fn(t, hooks, tt.mk(hooks, lockBps))
		})
	}
}

// state captures both the stored record and every derived quantity of a
// subscription, for fine-grained assertion of behaviour.
type state struct {
	Active       bool
	ExpiresAt    uint64
	Spend        Spend
	Withdrawable fund.Amount
	Record       Record
}

func snapshot(tb testing.TB, l Ledger, id fund.TokenID) state {
	tb.Helper()
	active, err := l.IsActive(id)
	require.NoErrorf(tb, err, "%T.IsActive(%d)", l, id)
	exp, err := l.ExpiresAt(id)
	require.NoErrorf(tb, err, "%T.ExpiresAt(%d)", l, id)
	sp, err := l.Spent(id)
	require.NoErrorf(tb, err, "%T.Spent(%d)", l, id)
	w, err := l.Withdrawable(id)
	require.NoErrorf(tb, err, "%T.Withdrawable(%d)", l, id)
	rec, ok := l.Get(id)
	require.Truef(tb, ok, "%T.Get(%d)", l, id)
	return state{
		Active:       active,
		ExpiresAt:    exp,
		Spend:        sp,
		Withdrawable: w,
		Record:       rec,
	}
}

func requireState(tb testing.TB, desc string, l Ledger, id fund.TokenID, want state) {
	tb.Helper()
	if diff := cmp.Diff(want, snapshot(tb, l, id)); diff != "" {
		tb.Fatalf("%s (-want +got):\n%s", desc, diff)
	}
}

func TestCreate(t *testing.T) {
	// Rate 10 with a 1x multiplier consumes 10 per unit; 100 funds 10 units.
	variants(t, 100 /* 1% lock */, func(t *testing.T, hooks *hookstest.Stub, l Ledger) {
		hooks.Time = 1234
		require.NoError(t, l.Create(42, 100, fund.MultiplierBase))

		requireState(t, "immediately after creation", l, 42, state{
			Active:    true,
			ExpiresAt: 1244,
			// The current time unit is already spent.
			Spend:        Spend{Spent: 10, Unspent: 90},
			Withdrawable: 90,
			Record: Record{
				MintedAt:        1234,
				StreakStartedAt: 1234,
				LastDepositAt:   1234,
				TotalDeposited:  100,
				CurrentDeposit:  100,
				LockedAmount:    1,
				Multiplier:      fund.MultiplierBase,
			},
		})

		require.ErrorIsf(t, l.Create(42, 100, fund.MultiplierBase), ErrAlreadyExists, "duplicate %T.Create()", l)
		require.ErrorIsf(t, l.Create(43, 100, 0), ErrZeroMultiplier, "%T.Create() with zero multiplier", l)
		require.ErrorIsf(t, l.Create(43, 100, math.MaxUint64), intmath.ErrOverflow, "%T.Create() with overflowing multiplier", l)
	})
}

func TestCreateUnfunded(t *testing.T) {
	variants(t, 100, func(t *testing.T, hooks *hookstest.Stub, l Ledger) {
		require.NoError(t, l.Create(1, 0, fund.MultiplierBase))
		requireState(t, "unfunded subscription", l, 1, state{
			Active:    false,
			ExpiresAt: 1000,
			Record: Record{
				MintedAt:        1000,
				StreakStartedAt: 1000,
				LastDepositAt:   1000,
				Multiplier:      fund.MultiplierBase,
			},
		})
	})
}

func TestHalfMultiplier(t *testing.T) {
	variants(t, 0, func(t *testing.T, hooks *hookstest.Stub, l Ledger) {
		require.NoError(t, l.Create(1, 100, fund.MultiplierBase/2))
		requireState(t, "0.5x multiplier doubles the funded units", l, 1, state{
			Active:       true,
			ExpiresAt:    1020,
			Spend:        Spend{Spent: 5, Unspent: 95},
			Withdrawable: 95,
			Record: Record{
				MintedAt:        1000,
				StreakStartedAt: 1000,
				LastDepositAt:   1000,
				TotalDeposited:  100,
				CurrentDeposit:  100,
				Multiplier:      fund.MultiplierBase / 2,
			},
		})
	})
}

func TestExpiry(t *testing.T) {
	variants(t, 0, func(t *testing.T, hooks *hookstest.Stub, l Ledger) {
		require.NoError(t, l.Create(1, 100, fund.MultiplierBase))

		hooks.Advance(9)
		requireState(t, "last funded unit", l, 1, state{
			Active:    true,
			ExpiresAt: 1010,
			Spend:     Spend{Spent: 100},
			Record: Record{
				MintedAt:        1000,
				StreakStartedAt: 1000,
				LastDepositAt:   1000,
				TotalDeposited:  100,
				CurrentDeposit:  100,
				Multiplier:      fund.MultiplierBase,
			},
		})

		hooks.Advance(1)
		got, err := l.IsActive(1)
		require.NoErrorf(t, err, "%T.IsActive()", l)
		require.Falsef(t, got, "%T.IsActive() at expiry", l)
	})
}

func TestWithdraw(t *testing.T) {
	variants(t, fund.LockBase/2 /* 50% lock */, func(t *testing.T, hooks *hookstest.Stub, l Ledger) {
		require.NoError(t, l.Create(1, 100, fund.MultiplierBase))

		// The lock of 50 binds before the unspent balance of 90 does.
		got, err := l.Withdrawable(1)
		require.NoErrorf(t, err, "%T.Withdrawable()", l)
		require.EqualValuesf(t, 50, got, "%T.Withdrawable()", l)

		_, err = l.Withdraw(1, 60)
		require.ErrorIsf(t, err, ErrExceedsWithdrawable, "%T.Withdraw() beyond the lock", l)

		w, err := l.Withdraw(1, 30)
		require.NoErrorf(t, err, "%T.Withdraw()", l)
		require.Equal(t, Withdrawal{
			StreakStartedAt: 1000,
			OldDeposit:      100,
			NewDeposit:      70,
		}, w)

		requireState(t, "after withdrawal", l, 1, state{
			Active:    true,
			ExpiresAt: 1007,
			Spend:     Spend{Spent: 10, Unspent: 60},
			// See TestWithdrawKeepsLock for why this isn't 60-30=30.
			Withdrawable: 20,
			Record: Record{
				MintedAt:        1000,
				StreakStartedAt: 1000,
				LastDepositAt:   1000,
				TotalDeposited:  70,
				CurrentDeposit:  70,
				LockedAmount:    50,
				Multiplier:      fund.MultiplierBase,
			},
		})

		_, err = l.Withdraw(99, 1)
		require.ErrorIsf(t, err, ErrNotFound, "%T.Withdraw() of unknown token", l)
	})
}

// TestWithdrawEverything drains the full withdrawable balance one unit into an
// unlocked subscription. What remains covers exactly the units consumed so
// far, current included: the subscription stays active for the rest of this
// unit and expires at the next.
func TestWithdrawEverything(t *testing.T) {
	variants(t, 0, func(t *testing.T, hooks *hookstest.Stub, l Ledger) {
		require.NoError(t, l.Create(1, 100, fund.MultiplierBase))
		hooks.Advance(1)

		available, err := l.Withdrawable(1)
		require.NoErrorf(t, err, "%T.Withdrawable()", l)
		require.EqualValuesf(t, 80, available, "%T.Withdrawable() after one unit", l)

		w, err := l.Withdraw(1, available)
		require.NoErrorf(t, err, "%T.Withdraw() of the full withdrawable", l)
		require.Equal(t, Withdrawal{
			StreakStartedAt: 1000,
			OldDeposit:      100,
			NewDeposit:      20,
		}, w)

		requireState(t, "after withdrawing everything", l, 1, state{
			Active:    true,
			ExpiresAt: 1002,
			Spend:     Spend{Spent: 20},
			Record: Record{
				MintedAt:        1000,
				StreakStartedAt: 1000,
				LastDepositAt:   1000,
				TotalDeposited:  20,
				CurrentDeposit:  20,
				Multiplier:      fund.MultiplierBase,
			},
		})

		hooks.Advance(1)
		active, err := l.IsActive(1)
		require.NoErrorf(t, err, "%T.IsActive()", l)
		require.Falsef(t, active, "%T.IsActive() the unit after a full withdrawal", l)
	})
}

// TestWithdrawKeepsLock pins the decision that a withdrawal does NOT re-derive
// the locked amount from the reduced balance; the lock set by the last
// deposit-affecting operation stands until the next one.
func TestWithdrawKeepsLock(t *testing.T) {
	variants(t, fund.LockBase/2, func(t *testing.T, hooks *hookstest.Stub, l Ledger) {
		require.NoError(t, l.Create(1, 100, fund.MultiplierBase))

		_, err := l.Withdraw(1, 30)
		require.NoErrorf(t, err, "%T.Withdraw()", l)

		rec, ok := l.Get(1)
		require.Truef(t, ok, "%T.Get()", l)
		require.EqualValuesf(t, 50, rec.LockedAmount, "locked amount after withdrawal")

		// Were the lock re-derived as 50% of the unspent 60, a further 0 would
		// remain withdrawable instead of 70-50=20.
		got, err := l.Withdrawable(1)
		require.NoErrorf(t, err, "%T.Withdrawable()", l)
		require.EqualValuesf(t, 20, got, "%T.Withdrawable() after withdrawal", l)
	})
}

func TestWithdrawInactive(t *testing.T) {
	variants(t, 0, func(t *testing.T, hooks *hookstest.Stub, l Ledger) {
		require.NoError(t, l.Create(1, 100, fund.MultiplierBase))
		hooks.Advance(10)

		got, err := l.Withdrawable(1)
		require.NoErrorf(t, err, "%T.Withdrawable()", l)
		require.Zerof(t, got, "%T.Withdrawable() of expired subscription", l)

		_, err = l.Withdraw(1, 1)
		require.ErrorIsf(t, err, ErrExceedsWithdrawable, "%T.Withdraw() from expired subscription", l)
	})
}

func TestReactivation(t *testing.T) {
	variants(t, 1000 /* 10% lock */, func(t *testing.T, hooks *hookstest.Stub, l Ledger) {
		require.NoError(t, l.Create(1, 100, fund.MultiplierBase))
		hooks.Advance(10) // expired exactly now

		ext, err := l.Extend(1, 50)
		require.NoErrorf(t, err, "%T.Extend() of expired subscription", l)
		require.Equal(t, Extension{
			StreakStartedAt: 1010,
			OldDeposit:      100,
			NewDeposit:      50,
			Reactivated:     true,
		}, ext)

		requireState(t, "reactivated subscription", l, 1, state{
			Active:    true,
			ExpiresAt: 1015,
			// The forfeited residue of the expired streak stays spent.
			Spend:        Spend{Spent: 110, Unspent: 40},
			Withdrawable: 40,
			Record: Record{
				MintedAt:        1000,
				StreakStartedAt: 1010,
				LastDepositAt:   1010,
				TotalDeposited:  150,
				CurrentDeposit:  50,
				LockedAmount:    5,
				Multiplier:      fund.MultiplierBase,
			},
		})
	})
}

func TestExtendErrors(t *testing.T) {
	variants(t, 0, func(t *testing.T, hooks *hookstest.Stub, l Ledger) {
		_, err := l.Extend(99, 1)
		require.ErrorIsf(t, err, ErrNotFound, "%T.Extend() of unknown token", l)

		require.NoError(t, l.Create(1, 100, fund.MultiplierBase))
		_, err = l.Extend(1, math.MaxUint64)
		require.ErrorIsf(t, err, intmath.ErrOverflow, "%T.Extend() overflowing the total", l)
	})
}

func TestTokensAndDelete(t *testing.T) {
	variants(t, 0, func(t *testing.T, hooks *hookstest.Stub, l Ledger) {
		for _, id := range []fund.TokenID{3, 1, 2} {
			require.NoError(t, l.Create(id, 10, fund.MultiplierBase))
		}
		require.Equalf(t, []fund.TokenID{1, 2, 3}, l.Tokens(), "%T.Tokens() sorted", l)

		require.NoErrorf(t, l.Delete(2), "%T.Delete()", l)
		require.Equal(t, []fund.TokenID{1, 3}, l.Tokens())

		require.ErrorIsf(t, l.Delete(2), ErrNotFound, "double %T.Delete()", l)
		_, err := l.Spent(2)
		require.ErrorIsf(t, err, ErrNotFound, "%T.Spent() of deleted token", l)
	})
}

func TestRestore(t *testing.T) {
	variants(t, 100, func(t *testing.T, hooks *hookstest.Stub, l Ledger) {
		require.NoError(t, l.Create(1, 100, fund.MultiplierBase))
		before, ok := l.Get(1)
		require.Truef(t, ok, "%T.Get()", l)

		_, err := l.Withdraw(1, 25)
		require.NoErrorf(t, err, "%T.Withdraw()", l)

		l.Restore(1, before)
		got, ok := l.Get(1)
		require.Truef(t, ok, "%T.Get() after Restore()", l)
		require.Equalf(t, before, got, "%T.Restore() reinstates the snapshot", l)
	})
}

// FuzzInvariants drives an arbitrary mint+extend+withdraw sequence and checks
// the relations that must hold after every successful operation.
func FuzzInvariants(f *testing.F) {
	f.Add(uint64(100), uint64(100), uint64(4), uint64(50), uint64(20), uint64(3))
	f.Add(uint64(0), uint64(1), uint64(0), uint64(0), uint64(0), uint64(0))
	f.Add(uint64(1e9), uint64(250), uint64(1000), uint64(1e9), uint64(1e9), uint64(12))

	f.Fuzz(func(t *testing.T, amount, multiplier, advance, extend, withdraw, advance2 uint64) {
		hooks := &hookstest.Stub{Time: 1000, Rate: 10}
		l := NewStreak(hooks, 2500)

		const id = 1
		m := fund.Multiplier(multiplier%1000 + 1)
		if err := l.Create(id, fund.Amount(amount%1e12), m); err != nil {
			t.Skipf("Create(): %v", err)
		}
		check := func(op string) {
			t.Helper()
			rec, ok := l.Get(id)
			require.Truef(t, ok, "%s: Get()", op)
			require.LessOrEqualf(t, rec.CurrentDeposit, rec.TotalDeposited, "%s: current <= total", op)

			sp, err := l.Spent(id)
			require.NoErrorf(t, err, "%s: Spent()", op)
			require.Equalf(t, rec.TotalDeposited, sp.Spent+sp.Unspent, "%s: spend partition sums to total", op)

			w, err := l.Withdrawable(id)
			require.NoErrorf(t, err, "%s: Withdrawable()", op)
			require.LessOrEqualf(t, w, sp.Unspent, "%s: withdrawable <= unspent", op)
			require.LessOrEqualf(t, w, intmath.BoundedSubtract(rec.CurrentDeposit, rec.LockedAmount, 0), "%s: withdrawable respects lock", op)
		}
		check("Create")

		hooks.Advance(advance % 1e6)
		check("Advance")

		if _, err := l.Extend(id, fund.Amount(extend%1e12)); err != nil {
			t.Skipf("Extend(): %v", err)
		}
		check("Extend")

		available, err := l.Withdrawable(id)
		require.NoError(t, err, "Withdrawable()")
		if available > 0 {
			_, err := l.Withdraw(id, fund.Amount(withdraw)%available+1)
			require.NoError(t, err, "Withdraw() within withdrawable")
			check("Withdraw")
		}

		hooks.Advance(advance2 % 1e6)
		check(fmt.Sprintf("Advance(%d)", advance2%1e6))
	})
}
