// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hookstest provides a test double for subtime's [hook] package.
package hookstest

import (
	"github.com/ava-labs/subtime/fund"
	"github.com/ava-labs/subtime/hook"
)

// Stub implements [hook.Points].
type Stub struct {
	Time uint64
	Rate fund.Amount
}

var _ hook.Points = (*Stub)(nil)

// Now returns [Stub.Time].
func (s *Stub) Now() uint64 {
	return s.Time
}

// RatePerUnit returns [Stub.Rate].
func (s *Stub) RatePerUnit() fund.Amount {
	return s.Rate
}

// Advance moves [Stub.Time] forward by `units`.
func (s *Stub) Advance(units uint64) {
	s.Time += units
}
