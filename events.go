// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package subtime

import (
	"github.com/ava-labs/libevm/event"

	"github.com/ava-labs/subtime/fund"
	"github.com/ava-labs/subtime/ledger"
)

// A DepositEvent reports a deposit-affecting operation: creation or renewal.
type DepositEvent struct {
	TokenID         fund.TokenID
	AddedAmount     fund.Amount
	NewTotalDeposit fund.Amount
	Initiator       Address
	Note            string
	// Reactivated reports, for renewals, that the subscription had expired
	// and a fresh streak was started.
	Reactivated bool
}

// A WithdrawEvent reports funds leaving a subscription, including the
// withdraw-everything performed by a cancellation.
type WithdrawEvent struct {
	TokenID          fund.TokenID
	Withdrawn        fund.Amount
	RemainingDeposit fund.Amount
}

// A ClaimEvent reports an epoch claim by the contract owner.
type ClaimEvent struct {
	Claimed      fund.Amount
	TotalClaimed fund.Amount
}

// A TipEvent reports a gratuity.
type TipEvent struct {
	TokenID   fund.TokenID
	Amount    fund.Amount
	TokenTips fund.Amount
	AllTips   fund.Amount
	Initiator Address
	Note      string
}

// A TipsClaimEvent reports a tip claim by the contract owner.
type TipsClaimEvent struct {
	Claimed      fund.Amount
	TotalClaimed fund.Amount
}

// A MultiplierChangeEvent reports a mid-subscription multiplier change in the
// streak model.
type MultiplierChangeEvent struct {
	TokenID   fund.TokenID
	WasActive bool
	Change    ledger.MultiplierChange
}

type feeds struct {
	created, renewed event.FeedOf[DepositEvent]
	withdrawn        event.FeedOf[WithdrawEvent]
	claimed          event.FeedOf[ClaimEvent]
	tipped           event.FeedOf[TipEvent]
	tipsClaimed      event.FeedOf[TipsClaimEvent]
	multiplier       event.FeedOf[MultiplierChangeEvent]
}

// SubscribeCreated sends a [DepositEvent] on the channel for every mint.
func (c *Contract) SubscribeCreated(ch chan<- DepositEvent) event.Subscription {
	return c.feeds.created.Subscribe(ch)
}

// SubscribeRenewed sends a [DepositEvent] on the channel for every renewal.
func (c *Contract) SubscribeRenewed(ch chan<- DepositEvent) event.Subscription {
	return c.feeds.renewed.Subscribe(ch)
}

// SubscribeWithdrawn sends a [WithdrawEvent] on the channel for every
// withdrawal and cancellation.
func (c *Contract) SubscribeWithdrawn(ch chan<- WithdrawEvent) event.Subscription {
	return c.feeds.withdrawn.Subscribe(ch)
}

// SubscribeClaimed sends a [ClaimEvent] on the channel for every epoch claim.
func (c *Contract) SubscribeClaimed(ch chan<- ClaimEvent) event.Subscription {
	return c.feeds.claimed.Subscribe(ch)
}

// SubscribeTipped sends a [TipEvent] on the channel for every tip.
func (c *Contract) SubscribeTipped(ch chan<- TipEvent) event.Subscription {
	return c.feeds.tipped.Subscribe(ch)
}

// SubscribeTipsClaimed sends a [TipsClaimEvent] on the channel for every tip
// claim.
func (c *Contract) SubscribeTipsClaimed(ch chan<- TipsClaimEvent) event.Subscription {
	return c.feeds.tipsClaimed.Subscribe(ch)
}

// SubscribeMultiplierChanged sends a [MultiplierChangeEvent] on the channel
// for every multiplier change.
func (c *Contract) SubscribeMultiplierChanged(ch chan<- MultiplierChangeEvent) event.Subscription {
	return c.feeds.multiplier.Subscribe(ch)
}
