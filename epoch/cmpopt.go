// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:build !prod && !nocmpopts

package epoch

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// CmpOpt returns a configuration for [cmp.Diff] to compare [Tracker]
// instances in tests.
func CmpOpt() cmp.Option {
	return cmp.Options{
		cmp.AllowUnexported(Tracker{}, bucket{}),
		cmpopts.EquateEmpty(),
	}
}
