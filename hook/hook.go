// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hook defines the chain context injected into subscription
// accounting. Functions in this package SHOULD be the only source of time and
// rate for all accounting code; neither MUST ever be read from ambient state.
package hook

import "github.com/ava-labs/subtime/fund"

// Points define host-injected context.
type Points interface {
	// Now returns the chain's monotonic time unit (block height or
	// timestamp). It MUST NOT decrease between calls and is sampled exactly
	// once per contract entry point.
	Now() uint64
	// RatePerUnit returns the tokens consumed per time unit by a
	// subscription with a 1x multiplier. It MUST remain constant for the
	// lifetime of any open streak.
	RatePerUnit() fund.Amount
}
