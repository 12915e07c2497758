// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package subtime implements on-chain, pay-as-you-go subscription accounting.
//
// A [Contract] wires the subscription [ledger], the [epoch] claim aggregator
// and the [tips] jar to host-provided token ledgers and chain context. The
// host executes one entry point at a time; every call either completes in
// full or returns an error with no state mutated.
package subtime

import (
	"errors"
	"fmt"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/libevm/common"
	"go.uber.org/zap"

	"github.com/ava-labs/subtime/epoch"
	"github.com/ava-labs/subtime/fund"
	"github.com/ava-labs/subtime/hook"
	"github.com/ava-labs/subtime/intmath"
	"github.com/ava-labs/subtime/ledger"
	"github.com/ava-labs/subtime/tips"
)

// An Address identifies an account on the host ledger.
type Address = common.Address

// A FungibleLedger moves deposit, withdrawal, claim and tip funds. Any error
// aborts the whole triggering operation.
type FungibleLedger interface {
	TransferFrom(from, to Address, amount fund.Amount) error
	Transfer(to Address, amount fund.Amount) error
	BalanceOf(addr Address) (fund.Amount, error)
}

// An IdentityLedger records ownership of the non-fungible token ids that
// identify subscriptions. Minting, ownership and transfer mechanics are
// entirely its concern; the contract only requires that a subscription record
// is created alongside a successful mint of the same id.
type IdentityLedger interface {
	Mint(to Address, id fund.TokenID) error
	OwnerOf(id fund.TokenID) (Address, error)
	Exists(id fund.TokenID) bool
}

// A Model selects the subscription ledger variant.
type Model uint8

const (
	// FlatModel re-bases the deposit on every renewal; multipliers are
	// immutable.
	FlatModel Model = iota
	// StreakModel preserves funding streaks across renewals and supports
	// multiplier changes.
	StreakModel
)

var (
	// ErrInvalidConfig is returned by [New].
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNotOwner is returned when the caller lacks authority over the
	// subscription or, for claims, over the contract.
	ErrNotOwner = errors.New("caller is not the owner")
	// ErrFlatModel is returned by [Contract.ChangeMultiplier] on a contract
	// constructed with [FlatModel].
	ErrFlatModel = errors.New("multiplier changes require the streak model")
)

// Config carries the collaborators and parameters of a [Contract]. All fields
// other than Log are required.
type Config struct {
	Token    FungibleLedger
	Identity IdentityLedger
	Hooks    hook.Points
	Log      logging.Logger

	// Self is the contract's own account, holding deposits in custody.
	Self Address
	// Owner is the claimant of spent funds and tips.
	Owner Address

	// EpochSize is the claim-batching window, in time units.
	EpochSize uint64
	// LockBps is the fraction of the unspent balance, in [fund.LockBase]
	// units, withheld from withdrawal.
	LockBps fund.Bips
	Model   Model
}

func (cfg *Config) validate() error {
	switch {
	case cfg.Token == nil:
		return fmt.Errorf("%w: nil fungible ledger", ErrInvalidConfig)
	case cfg.Identity == nil:
		return fmt.Errorf("%w: nil identity ledger", ErrInvalidConfig)
	case cfg.Hooks == nil:
		return fmt.Errorf("%w: nil hook points", ErrInvalidConfig)
	case cfg.Self == (Address{}):
		return fmt.Errorf("%w: zero self address", ErrInvalidConfig)
	case cfg.Owner == (Address{}):
		return fmt.Errorf("%w: zero owner address", ErrInvalidConfig)
	case cfg.Hooks.RatePerUnit() == 0:
		return fmt.Errorf("%w: zero rate", ErrInvalidConfig)
	case cfg.EpochSize == 0:
		return fmt.Errorf("%w: zero epoch size", ErrInvalidConfig)
	case cfg.LockBps > fund.LockBase:
		return fmt.Errorf("%w: lock %d exceeds %d", ErrInvalidConfig, cfg.LockBps, fund.LockBase)
	}
	return nil
}

// A Contract is the user- and owner-facing surface of one subscription
// collection. It is not thread safe; the host serialises all calls.
type Contract struct {
	cfg    Config
	log    logging.Logger
	ledger ledger.Ledger
	// streak is non-nil i.f.f. the contract was constructed with
	// [StreakModel], aliasing the same ledger.
	streak  *ledger.Streak
	tracker *epoch.Tracker
	jar     *tips.Jar
	feeds   feeds
}

// New constructs a [Contract] from the validated config.
func New(cfg Config) (*Contract, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = logging.NoLog{}
	}

	tracker, err := epoch.New(cfg.EpochSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err)
	}

	c := &Contract{
		cfg:     cfg,
		log:     log,
		tracker: tracker,
		jar:     tips.NewJar(),
	}
	switch cfg.Model {
	case StreakModel:
		c.streak = ledger.NewStreak(cfg.Hooks, cfg.LockBps)
		c.ledger = c.streak
	case FlatModel:
		c.ledger = ledger.NewFlat(cfg.Hooks, cfg.LockBps)
	default:
		return nil, fmt.Errorf("%w: unknown model %d", ErrInvalidConfig, cfg.Model)
	}
	return c, nil
}

// schedule captures the claim-side projection of a record's current streak.
type schedule struct {
	start, expiry uint64
	deposit       fund.Amount
	flow          fund.Flow
	active        bool
}

func (c *Contract) scheduleOf(id fund.TokenID) (schedule, error) {
	rec, ok := c.ledger.Get(id)
	if !ok {
		return schedule{}, fmt.Errorf("token %d: %w", id, ledger.ErrNotFound)
	}
	f, err := fund.FlowOf(c.cfg.Hooks.RatePerUnit(), rec.Multiplier)
	if err != nil {
		return schedule{}, err
	}
	expiry, err := c.ledger.ExpiresAt(id)
	if err != nil {
		return schedule{}, err
	}
	return schedule{
		start:   rec.StreakStartedAt,
		expiry:  expiry,
		deposit: rec.CurrentDeposit,
		flow:    f,
		active:  c.cfg.Hooks.Now() < expiry,
	}, nil
}

// Mint creates the subscription, minting token `id` to the caller and taking
// `amount` into custody. A zero amount is permitted and yields an immediately
// inactive subscription.
func (c *Contract) Mint(caller Address, id fund.TokenID, amount fund.Amount, m fund.Multiplier, note string) error {
	if _, ok := c.ledger.Get(id); ok {
		return fmt.Errorf("token %d: %w", id, ledger.ErrAlreadyExists)
	}
	if m == 0 {
		return fmt.Errorf("token %d: %w", id, ledger.ErrZeroMultiplier)
	}
	f, err := fund.FlowOf(c.cfg.Hooks.RatePerUnit(), m)
	if err != nil {
		return fmt.Errorf("token %d: rate*multiplier: %w", id, err)
	}

	// Internal bookkeeping first, external collaborators last: the record and
	// the claim schedule unwind to snapshots on any failure, while an identity
	// mint could not be taken back.
	rollback := c.tracker.Bytes()
	if err := c.ledger.Create(id, amount, m); err != nil {
		return err
	}
	now := c.cfg.Hooks.Now()
	expiry, err := c.ledger.ExpiresAt(id)
	if err == nil {
		err = c.tracker.Schedule(now, expiry, amount, f)
	}
	if err != nil {
		c.mustDelete(id)
		c.restoreTracker(rollback)
		return fmt.Errorf("token %d: scheduling claims: %w", id, err)
	}

	if err := c.deposit(caller, amount); err != nil {
		c.mustDelete(id)
		c.restoreTracker(rollback)
		return err
	}
	if err := c.cfg.Identity.Mint(caller, id); err != nil {
		c.mustDelete(id)
		c.restoreTracker(rollback)
		if amount > 0 {
			if rErr := c.cfg.Token.Transfer(caller, amount); rErr != nil {
				c.log.Error("refunding failed mint",
					zap.Uint64("token", uint64(id)),
					zap.Error(rErr),
				)
			}
		}
		return fmt.Errorf("minting token %d: %w", id, err)
	}

	c.log.Debug("subscription minted",
		zap.Uint64("token", uint64(id)),
		zap.Uint64("amount", uint64(amount)),
		zap.Uint64("multiplier", uint64(m)),
		zap.Uint64("expiresAt", expiry),
	)
	c.feeds.created.Send(DepositEvent{
		TokenID:         id,
		AddedAmount:     amount,
		NewTotalDeposit: amount,
		Initiator:       caller,
		Note:            note,
	})
	return nil
}

// Renew adds `amount` to the subscription's deposit, reactivating it if
// expired. Anyone may fund any existing subscription.
func (c *Contract) Renew(caller Address, id fund.TokenID, amount fund.Amount, note string) error {
	before, err := c.scheduleOf(id)
	if err != nil {
		return err
	}
	snapshot, _ := c.ledger.Get(id)
	rollback := c.tracker.Bytes()

	ext, err := c.ledger.Extend(id, amount)
	if err != nil {
		return err
	}

	after, err := c.scheduleOf(id)
	now := c.cfg.Hooks.Now()
	switch {
	case err != nil:
	case ext.Reactivated:
		// The old streak ran to expiry; its claim schedule is already
		// complete and the residue forfeit.
		err = c.tracker.Schedule(now, after.expiry, ext.NewDeposit, after.flow)
	case c.cfg.Model == FlatModel:
		// Re-based onto a fresh streak starting now.
		if err = c.tracker.CancelFrom(now, before.start, before.expiry, before.deposit, before.flow); err == nil {
			err = c.tracker.Schedule(now, after.expiry, ext.NewDeposit, after.flow)
		}
	default:
		if err = c.tracker.CancelFrom(now, before.start, before.expiry, before.deposit, before.flow); err == nil {
			err = c.tracker.Resume(now, before.start, after.expiry, ext.NewDeposit, after.flow)
		}
	}
	if err != nil {
		c.ledger.Restore(id, snapshot)
		c.restoreTracker(rollback)
		return fmt.Errorf("token %d: scheduling claims: %w", id, err)
	}

	if err := c.deposit(caller, amount); err != nil {
		c.ledger.Restore(id, snapshot)
		c.restoreTracker(rollback)
		return err
	}

	total, err := c.ledger.TotalDeposited(id)
	if err != nil {
		return err
	}
	c.log.Debug("subscription renewed",
		zap.Uint64("token", uint64(id)),
		zap.Uint64("amount", uint64(amount)),
		zap.Bool("reactivated", ext.Reactivated),
		zap.Uint64("expiresAt", after.expiry),
	)
	c.feeds.renewed.Send(DepositEvent{
		TokenID:         id,
		AddedAmount:     amount,
		NewTotalDeposit: total,
		Initiator:       caller,
		Note:            note,
		Reactivated:     ext.Reactivated,
	})
	return nil
}

// Withdraw returns `amount` of the caller's unspent, unlocked deposit.
func (c *Contract) Withdraw(caller Address, id fund.TokenID, amount fund.Amount) error {
	if err := c.requireTokenOwner(caller, id); err != nil {
		return err
	}
	before, err := c.scheduleOf(id)
	if err != nil {
		return err
	}
	snapshot, _ := c.ledger.Get(id)
	rollback := c.tracker.Bytes()

	w, err := c.ledger.Withdraw(id, amount)
	if err != nil {
		return err
	}
	if before.active {
		after, err := c.scheduleOf(id)
		now := c.cfg.Hooks.Now()
		if err == nil {
			err = c.tracker.CancelFrom(now, before.start, before.expiry, before.deposit, before.flow)
		}
		if err == nil {
			err = c.tracker.Resume(now, before.start, after.expiry, after.deposit, after.flow)
		}
		if err != nil {
			c.ledger.Restore(id, snapshot)
			c.restoreTracker(rollback)
			return fmt.Errorf("token %d: scheduling claims: %w", id, err)
		}
	}

	if err := c.cfg.Token.Transfer(caller, amount); err != nil {
		c.ledger.Restore(id, snapshot)
		c.restoreTracker(rollback)
		return fmt.Errorf("withdrawing from token %d: %w", id, err)
	}

	c.log.Debug("withdrawal",
		zap.Uint64("token", uint64(id)),
		zap.Uint64("amount", uint64(amount)),
		zap.Uint64("remaining", uint64(w.NewDeposit)),
	)
	c.feeds.withdrawn.Send(WithdrawEvent{
		TokenID:          id,
		Withdrawn:        amount,
		RemainingDeposit: w.NewDeposit,
	})
	return nil
}

// Cancel withdraws everything withdrawable, deletes the record and routes the
// locked-but-unspent remainder to the claim side. The token id itself remains
// with the identity ledger; the accounting position ceases to exist.
func (c *Contract) Cancel(caller Address, id fund.TokenID) error {
	if err := c.requireTokenOwner(caller, id); err != nil {
		return err
	}
	before, err := c.scheduleOf(id)
	if err != nil {
		return err
	}
	snapshot, _ := c.ledger.Get(id)
	rollback := c.tracker.Bytes()
	refund, err := c.ledger.Withdrawable(id)
	if err != nil {
		return err
	}

	if err := c.ledger.Delete(id); err != nil {
		return err
	}
	if before.active {
		now := c.cfg.Hooks.Now()
		err := c.tracker.CancelFrom(now, before.start, before.expiry, before.deposit, before.flow)
		if err == nil {
			owed := intmath.BoundedSubtract(before.deposit, refund, 0)
			err = c.tracker.SettleStreak(now, before.start, owed, before.flow)
		}
		if err != nil {
			c.ledger.Restore(id, snapshot)
			c.restoreTracker(rollback)
			return fmt.Errorf("token %d: settling claims: %w", id, err)
		}
	}

	if refund > 0 {
		if err := c.cfg.Token.Transfer(caller, refund); err != nil {
			c.ledger.Restore(id, snapshot)
			c.restoreTracker(rollback)
			return fmt.Errorf("refunding token %d: %w", id, err)
		}
	}

	c.log.Info("subscription cancelled",
		zap.Uint64("token", uint64(id)),
		zap.Uint64("refunded", uint64(refund)),
	)
	c.feeds.withdrawn.Send(WithdrawEvent{
		TokenID:          id,
		Withdrawn:        refund,
		RemainingDeposit: 0,
	})
	return nil
}

// ChangeMultiplier re-rates the subscription going forward; the current time
// unit remains paid under the old multiplier. Only the contract owner sets
// multipliers, and only in the streak model.
func (c *Contract) ChangeMultiplier(caller Address, id fund.TokenID, m fund.Multiplier) error {
	if caller != c.cfg.Owner {
		return fmt.Errorf("%w: multiplier change by %s", ErrNotOwner, caller)
	}
	if c.streak == nil {
		return ErrFlatModel
	}
	before, err := c.scheduleOf(id)
	if err != nil {
		return err
	}

	snapshot, _ := c.ledger.Get(id)
	rollback := c.tracker.Bytes()

	wasActive, change, err := c.streak.ChangeMultiplier(id, m)
	if err != nil {
		return err
	}

	now := c.cfg.Hooks.Now()
	if wasActive {
		err := c.tracker.CancelFrom(now, before.start, before.expiry, before.deposit, before.flow)
		if err == nil {
			spent := intmath.BoundedSubtract(change.OldDeposit, change.NewDeposit, 0)
			err = c.tracker.SettleStreak(now, before.start, spent, before.flow)
		}
		if err == nil {
			var after schedule
			if after, err = c.scheduleOf(id); err == nil {
				err = c.tracker.Schedule(change.NewStreakStartedAt, after.expiry, change.NewDeposit, after.flow)
			}
		}
		if err != nil {
			c.ledger.Restore(id, snapshot)
			c.restoreTracker(rollback)
			return fmt.Errorf("token %d: scheduling claims: %w", id, err)
		}
	}

	c.log.Debug("multiplier changed",
		zap.Uint64("token", uint64(id)),
		zap.Uint64("old", uint64(change.OldMultiplier)),
		zap.Uint64("new", uint64(change.NewMultiplier)),
		zap.Bool("wasActive", wasActive),
	)
	c.feeds.multiplier.Send(MultiplierChangeEvent{
		TokenID:   id,
		WasActive: wasActive,
		Change:    change,
	})
	return nil
}

// Claim transfers every whole epoch's worth of spent funds accrued since the
// last claim to the contract owner. Claiming zero is a no-op, not an error.
func (c *Contract) Claim(caller Address) (fund.Amount, error) {
	if caller != c.cfg.Owner {
		return 0, fmt.Errorf("%w: claim by %s", ErrNotOwner, caller)
	}

	// The tracker cannot unwind a claim, so keep its prior state to restore
	// should the transfer fail.
	rollback := c.tracker.Bytes()
	claimed, total, err := c.tracker.Claim(c.cfg.Hooks.Now())
	if err != nil {
		return 0, err
	}
	if claimed > 0 {
		if err := c.cfg.Token.Transfer(c.cfg.Owner, claimed); err != nil {
			c.restoreTracker(rollback)
			return 0, fmt.Errorf("transferring claim: %w", err)
		}
	}

	c.log.Info("epoch claim",
		zap.Uint64("claimed", uint64(claimed)),
		zap.Uint64("totalClaimed", uint64(total)),
	)
	c.feeds.claimed.Send(ClaimEvent{
		Claimed:      claimed,
		TotalClaimed: total,
	})
	return claimed, nil
}

// Tip attributes a gratuity to the subscription. Tips are claimable by the
// owner immediately and independently of subscription expiry.
func (c *Contract) Tip(caller Address, id fund.TokenID, amount fund.Amount, note string) error {
	if _, ok := c.ledger.Get(id); !ok {
		return fmt.Errorf("token %d: %w", id, ledger.ErrNotFound)
	}
	// Pre-check the counters so the transfer never needs refunding.
	if _, err := intmath.Add(c.jar.AllTips(), amount); err != nil {
		return fmt.Errorf("token %d: tips: %w", id, err)
	}
	if _, err := intmath.Add(c.jar.TipsOf(id), amount); err != nil {
		return fmt.Errorf("token %d: tips: %w", id, err)
	}

	if err := c.deposit(caller, amount); err != nil {
		return err
	}
	if err := c.jar.Tip(id, amount); err != nil {
		return err
	}

	c.feeds.tipped.Send(TipEvent{
		TokenID:   id,
		Amount:    amount,
		TokenTips: c.jar.TipsOf(id),
		AllTips:   c.jar.AllTips(),
		Initiator: caller,
		Note:      note,
	})
	return nil
}

// ClaimTips transfers all unclaimed tips to the contract owner.
func (c *Contract) ClaimTips(caller Address) (fund.Amount, error) {
	if caller != c.cfg.Owner {
		return 0, fmt.Errorf("%w: tip claim by %s", ErrNotOwner, caller)
	}
	claimable := c.jar.Claimable()
	if claimable > 0 {
		if err := c.cfg.Token.Transfer(c.cfg.Owner, claimable); err != nil {
			return 0, fmt.Errorf("transferring tips: %w", err)
		}
	}
	claimed := c.jar.Claim()

	c.feeds.tipsClaimed.Send(TipsClaimEvent{
		Claimed:      claimed,
		TotalClaimed: c.jar.ClaimedTips(),
	})
	return claimed, nil
}

// restoreTracker reinstates a snapshot taken with [epoch.Tracker.Bytes]
// before a later step of the same call failed.
func (c *Contract) restoreTracker(snapshot []byte) {
	restored, err := epoch.FromBytes(snapshot)
	if err != nil {
		// Restoring our own snapshot cannot fail unless there is a bug in the
		// marshalling.
		c.log.Fatal("BUG: restoring claim tracker", zap.Error(err))
		return
	}
	c.tracker = restored
}

// mustDelete unwinds a record created earlier in the same call.
func (c *Contract) mustDelete(id fund.TokenID) {
	if err := c.ledger.Delete(id); err != nil {
		c.log.Fatal("BUG: unwinding subscription record",
			zap.Uint64("token", uint64(id)),
			zap.Error(err),
		)
	}
}

func (c *Contract) deposit(from Address, amount fund.Amount) error {
	if amount == 0 {
		return nil
	}
	if err := c.cfg.Token.TransferFrom(from, c.cfg.Self, amount); err != nil {
		return fmt.Errorf("taking deposit of %d: %w", amount, err)
	}
	return nil
}

func (c *Contract) requireTokenOwner(caller Address, id fund.TokenID) error {
	if _, ok := c.ledger.Get(id); !ok {
		return fmt.Errorf("token %d: %w", id, ledger.ErrNotFound)
	}
	owner, err := c.cfg.Identity.OwnerOf(id)
	if err != nil {
		return fmt.Errorf("token %d: %w", id, err)
	}
	if owner != caller {
		return fmt.Errorf("token %d owned by %s: %w", id, owner, ErrNotOwner)
	}
	return nil
}

/* ===== Read views ===== */

// IsActive reports whether the subscription is funded at the current time.
func (c *Contract) IsActive(id fund.TokenID) (bool, error) {
	return c.ledger.IsActive(id)
}

// ExpiresAt returns the first time unit at which the subscription is
// inactive.
func (c *Contract) ExpiresAt(id fund.TokenID) (uint64, error) {
	return c.ledger.ExpiresAt(id)
}

// Withdrawable returns the amount the position owner could withdraw now.
func (c *Contract) Withdrawable(id fund.TokenID) (fund.Amount, error) {
	return c.ledger.Withdrawable(id)
}

// Spent partitions the subscription's total deposit into spent and unspent.
func (c *Contract) Spent(id fund.TokenID) (ledger.Spend, error) {
	return c.ledger.Spent(id)
}

// Record returns a snapshot of the stored subscription state.
func (c *Contract) Record(id fund.TokenID) (ledger.Record, bool) {
	return c.ledger.Get(id)
}

// Claimed returns the running total of epoch-claimed funds.
func (c *Contract) Claimed() fund.Amount {
	return c.tracker.Claimed()
}

// Tips returns the jar tracking gratuities.
func (c *Contract) Tips() *tips.Jar {
	return c.jar
}
