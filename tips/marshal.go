// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package tips

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/ava-labs/subtime/fund"
)

// Bytes marshals the jar as big-endian bytes for host persistence. Per-token
// attributions are written in ascending token order so output is
// deterministic.
func (j *Jar) Bytes() []byte {
	ids := make([]fund.TokenID, 0, len(j.byToken))
	for id := range j.byToken {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	b := make([]byte, 0, (3+2*len(ids))*8)
	b = binary.BigEndian.AppendUint64(b, uint64(j.all))
	b = binary.BigEndian.AppendUint64(b, uint64(j.claimed))
	b = binary.BigEndian.AppendUint64(b, uint64(len(ids)))
	for _, id := range ids {
		b = binary.BigEndian.AppendUint64(b, uint64(id))
		b = binary.BigEndian.AppendUint64(b, uint64(j.byToken[id]))
	}
	return b
}

// JarFromBytes is the inverse of [Jar.Bytes].
func JarFromBytes(b []byte) (*Jar, error) {
	const header = 3 * 8
	if len(b) < header {
		return nil, fmt.Errorf("marshalled jar is %d bytes; want >= %d", len(b), header)
	}
	u := func(i int) uint64 { return binary.BigEndian.Uint64(b[8*i:]) }

	n := u(2)
	if want := header + int(n)*2*8; len(b) != want {
		return nil, fmt.Errorf("marshalled jar is %d bytes; want %d for %d tokens", len(b), want, n)
	}
	j := NewJar()
	j.all = fund.Amount(u(0))
	j.claimed = fund.Amount(u(1))
	for i := range n {
		off := 3 + int(i)*2
		j.byToken[fund.TokenID(u(off))] = fund.Amount(u(off + 1))
	}
	return j, nil
}
