// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/ava-labs/subtime/fund"
)

// recordBytesLen is the fixed width of a marshalled [Record].
const recordBytesLen = 7 * 8

// Bytes marshals the record as big-endian bytes for host persistence.
func (r *Record) Bytes() []byte {
	b := make([]byte, 0, recordBytesLen)
	b = binary.BigEndian.AppendUint64(b, r.MintedAt)
	b = binary.BigEndian.AppendUint64(b, r.StreakStartedAt)
	b = binary.BigEndian.AppendUint64(b, r.LastDepositAt)
	b = binary.BigEndian.AppendUint64(b, uint64(r.TotalDeposited))
	b = binary.BigEndian.AppendUint64(b, uint64(r.CurrentDeposit))
	b = binary.BigEndian.AppendUint64(b, uint64(r.LockedAmount))
	b = binary.BigEndian.AppendUint64(b, uint64(r.Multiplier))
	return b
}

// RecordFromBytes is the inverse of [Record.Bytes].
func RecordFromBytes(b []byte) (Record, error) {
	if len(b) != recordBytesLen {
		return Record{}, fmt.Errorf("marshalled record is %d bytes; want %d", len(b), recordBytesLen)
	}
	u := func(i int) uint64 { return binary.BigEndian.Uint64(b[8*i:]) }
	return Record{
		MintedAt:        u(0),
		StreakStartedAt: u(1),
		LastDepositAt:   u(2),
		TotalDeposited:  fund.Amount(u(3)),
		CurrentDeposit:  fund.Amount(u(4)),
		LockedAmount:    fund.Amount(u(5)),
		Multiplier:      fund.Multiplier(u(6)),
	}, nil
}

// Restore inserts a previously persisted record, overwriting any existing
// record for the id.
func (c *core) Restore(id fund.TokenID, rec Record) {
	r := rec
	c.records[id] = &r
}
