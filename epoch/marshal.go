// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package epoch

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/ava-labs/subtime/fund"
)

// Bytes marshals the tracker as big-endian bytes for host persistence.
// Buckets are written in ascending epoch order so output is deterministic.
func (t *Tracker) Bytes() []byte {
	keys := make([]uint64, 0, len(t.epochs))
	for e := range t.epochs {
		keys = append(keys, e)
	}
	slices.Sort(keys)

	b := make([]byte, 0, (6+9*len(keys))*8)
	b = binary.BigEndian.AppendUint64(b, t.size)
	b = binary.BigEndian.AppendUint64(b, t.processed)
	b = binary.BigEndian.AppendUint64(b, uint64(t.flow))
	b = binary.BigEndian.AppendUint64(b, uint64(t.carry))
	b = binary.BigEndian.AppendUint64(b, uint64(t.claimed))
	b = binary.BigEndian.AppendUint64(b, uint64(len(keys)))
	for _, e := range keys {
		bk := t.epochs[e]
		b = binary.BigEndian.AppendUint64(b, e)
		b = binary.BigEndian.AppendUint64(b, uint64(bk.flowIn))
		b = binary.BigEndian.AppendUint64(b, uint64(bk.flowOut))
		b = binary.BigEndian.AppendUint64(b, uint64(bk.partialIn))
		b = binary.BigEndian.AppendUint64(b, uint64(bk.partialOut))
		b = binary.BigEndian.AppendUint64(b, uint64(bk.residualIn))
		b = binary.BigEndian.AppendUint64(b, uint64(bk.residualOut))
		b = binary.BigEndian.AppendUint64(b, bk.starting)
		b = binary.BigEndian.AppendUint64(b, bk.expiring)
	}
	return b
}

// FromBytes is the inverse of [Tracker.Bytes].
func FromBytes(b []byte) (*Tracker, error) {
	const header = 6 * 8
	if len(b) < header {
		return nil, fmt.Errorf("marshalled tracker is %d bytes; want >= %d", len(b), header)
	}
	u := func(i int) uint64 { return binary.BigEndian.Uint64(b[8*i:]) }

	t, err := New(u(0))
	if err != nil {
		return nil, err
	}
	t.processed = u(1)
	t.flow = fund.Flow(u(2))
	t.carry = fund.Amount(u(3))
	t.claimed = fund.Amount(u(4))

	n := u(5)
	if want := header + int(n)*9*8; len(b) != want {
		return nil, fmt.Errorf("marshalled tracker is %d bytes; want %d for %d buckets", len(b), want, n)
	}
	for i := range n {
		off := 6 + int(i)*9
		t.epochs[u(off)] = &bucket{
			flowIn:      fund.Flow(u(off + 1)),
			flowOut:     fund.Flow(u(off + 2)),
			partialIn:   fund.Amount(u(off + 3)),
			partialOut:  fund.Amount(u(off + 4)),
			residualIn:  fund.Amount(u(off + 5)),
			residualOut: fund.Amount(u(off + 6)),
			starting:    u(off + 7),
			expiring:    u(off + 8),
		}
	}
	return t, nil
}
