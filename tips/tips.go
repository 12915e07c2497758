// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package tips tracks gratuities, decoupled from subscription expiry.
//
// The two aggregate counters only ever increase; the claimable balance is
// their difference. A Jar is not thread safe.
package tips

import (
	"github.com/ava-labs/subtime/fund"
	"github.com/ava-labs/subtime/intmath"
)

// A Jar accumulates tips and their claims.
type Jar struct {
	all, claimed fund.Amount
	byToken      map[fund.TokenID]fund.Amount
}

// NewJar constructs an empty [Jar].
func NewJar() *Jar {
	return &Jar{byToken: make(map[fund.TokenID]fund.Amount)}
}

// Tip attributes `amount` to the token, increasing the all-time total.
func (j *Jar) Tip(id fund.TokenID, amount fund.Amount) error {
	all, err := intmath.Add(j.all, amount)
	if err != nil {
		return err
	}
	forToken, err := intmath.Add(j.byToken[id], amount)
	if err != nil {
		return err
	}
	j.all = all
	j.byToken[id] = forToken
	return nil
}

// Claim marks the entire claimable balance as claimed and returns it.
// Claiming zero is a no-op, not an error.
func (j *Jar) Claim() fund.Amount {
	c := j.Claimable()
	j.claimed += c
	return c
}

// Claimable returns tips received but not yet claimed.
func (j *Jar) Claimable() fund.Amount {
	return j.all - j.claimed
}

// AllTips returns the all-time total of tips received.
func (j *Jar) AllTips() fund.Amount {
	return j.all
}

// ClaimedTips returns the all-time total of tips claimed.
func (j *Jar) ClaimedTips() fund.Amount {
	return j.claimed
}

// TipsOf returns the all-time tips attributed to the token. Attribution
// survives cancellation of the subscription.
func (j *Jar) TipsOf(id fund.TokenID) fund.Amount {
	return j.byToken[id]
}
