// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package epoch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/subtime/fund"
)

func newTracker(tb testing.TB, size uint64) *Tracker {
	tb.Helper()
	tr, err := New(size)
	require.NoErrorf(tb, err, "New(%d)", size)
	return tr
}

func requireClaim(tb testing.TB, tr *Tracker, now uint64, wantNow, wantTotal fund.Amount) {
	tb.Helper()
	gotNow, gotTotal, err := tr.Claim(now)
	require.NoErrorf(tb, err, "%T.Claim(%d)", tr, now)
	require.Equalf(tb, wantNow, gotNow, "%T.Claim(%d) amount", tr, now)
	require.Equalf(tb, wantTotal, gotTotal, "%T.Claim(%d) running total", tr, now)
}

func TestNew(t *testing.T) {
	_, err := New(0)
	require.ErrorIs(t, err, ErrZeroEpochSize)

	tr := newTracker(t, 25)
	require.EqualValuesf(t, 25, tr.Size(), "%T.Size()", tr)
	require.EqualValuesf(t, 0, tr.Index(24), "%T.Index(24)", tr)
	require.EqualValuesf(t, 1, tr.Index(25), "%T.Index(25)", tr)
}

func TestScheduleRejectsReversedStreak(t *testing.T) {
	tr := newTracker(t, 10)
	require.Errorf(t, tr.Schedule(10, 9, 1, 1), "%T.Schedule() with expiry before start", tr)
}

// TestClaimSchedule follows a single streak through its lifetime: rate 10 per
// unit (scaled flow 1000), deposit 1000, minted at time 0, so expiring at
// time 100 with epochs of 10 units.
func TestClaimSchedule(t *testing.T) {
	tr := newTracker(t, 10)
	require.NoError(t, tr.Schedule(0, 100, 1000, 1000))

	// Epoch 0 has not closed yet; there is nothing to claim.
	requireClaim(t, tr, 9, 0, 0)

	// Epoch 0 credits units 1-9 (the minting unit itself is settled by the
	// expiry residual), epoch 1 credits all 10 of its units.
	requireClaim(t, tr, 20, 190, 190)
	requireClaim(t, tr, 20, 0, 190) // idempotent

	// The remainder of the deposit, exactly.
	requireClaim(t, tr, 110, 810, 1000)
	require.EqualValuesf(t, 1000, tr.Claimed(), "%T.Claimed()", tr)
}

// TestClaimCarry uses a flow that is not a multiple of the multiplier base so
// that claims leave a sub-unit remainder, which must carry to the next claim
// instead of being dropped.
func TestClaimCarry(t *testing.T) {
	tr := newTracker(t, 10)
	require.NoError(t, tr.Schedule(0, 100, 99, 99)) // 0.99 per unit

	// Units 1-9 are worth 8.91; the 0.91 carries.
	requireClaim(t, tr, 10, 8, 8)
	// Epoch 1 is worth 9.90; with the carry, 10.81.
	requireClaim(t, tr, 20, 10, 18)
}

// TestCancelSettle cancels a streak a quarter of the way through and settles
// the claimant's share. The claimable total must be exactly the spent part,
// current unit included, with the withdrawn remainder never reaching the
// claim side.
func TestCancelSettle(t *testing.T) {
	tr := newTracker(t, 10)
	require.NoError(t, tr.Schedule(0, 100, 1000, 1000))

	// Cancelled at unit 25: 26 units spent (260), 740 refunded.
	require.NoError(t, tr.CancelFrom(25, 0, 100, 1000, 1000))
	require.NoError(t, tr.SettleStreak(25, 0, 260, 1000))

	requireClaim(t, tr, 110, 260, 260)
}

// TestResume reschedules a streak after a mid-life withdrawal: deposit reduced
// from 1000 to 500 at unit 25, pulling the expiry from 100 to 50.
func TestResume(t *testing.T) {
	tr := newTracker(t, 10)
	require.NoError(t, tr.Schedule(0, 100, 1000, 1000))

	require.NoError(t, tr.CancelFrom(25, 0, 100, 1000, 1000))
	require.NoError(t, tr.Resume(25, 0, 50, 500, 1000))

	requireClaim(t, tr, 110, 500, 500)
}

func TestUnfundedStreak(t *testing.T) {
	tr := newTracker(t, 10)
	require.NoError(t, tr.Schedule(5, 5, 0, 1000))
	requireClaim(t, tr, 100, 0, 0)
}

// FuzzClaimConservation schedules one streak and claims at three arbitrary
// times, the last of which is beyond the streak's final epoch. The claims must
// never exceed the deposit and must sum to exactly the deposit once the final
// epoch closes.
func FuzzClaimConservation(f *testing.F) {
	f.Add(uint64(1000), uint64(1000), uint64(10), uint64(20), uint64(60))
	f.Add(uint64(99), uint64(7), uint64(3), uint64(0), uint64(1))
	f.Add(uint64(1), uint64(123456), uint64(97), uint64(5000), uint64(5001))

	f.Fuzz(func(t *testing.T, deposit, flow, size, t1, t2 uint64) {
		d := fund.Amount(deposit % 1e9)
		fl := fund.Flow(flow%1e6 + 1)
		tr := newTracker(t, size%100+1)

		expiry, err := fl.Funds(d)
		require.NoErrorf(t, err, "%T.Funds(%d)", fl, d)
		require.NoErrorf(t, tr.Schedule(0, expiry, d, fl), "%T.Schedule()", tr)

		final := expiry + tr.Size()
		c1, _, err := tr.Claim(t1 % (final + 1))
		require.NoErrorf(t, err, "%T.Claim() #1", tr)
		c2, running, err := tr.Claim(t2 % (final + 1))
		require.NoErrorf(t, err, "%T.Claim() #2", tr)
		require.LessOrEqualf(t, running, d, "running total after two claims")

		c3, total, err := tr.Claim(final)
		require.NoErrorf(t, err, "%T.Claim() #3", tr)
		require.Equalf(t, d, total, "claims %d+%d+%d must sum to the deposit", c1, c2, c3)
	})
}
