// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package subtime

import (
	"encoding/binary"
	"fmt"

	"github.com/ava-labs/avalanchego/database"

	"github.com/ava-labs/subtime/epoch"
	"github.com/ava-labs/subtime/fund"
	"github.com/ava-labs/subtime/ledger"
	"github.com/ava-labs/subtime/tips"
)

func tokenDBKey(prefix string, id fund.TokenID) []byte {
	return binary.BigEndian.AppendUint64([]byte(prefix), uint64(id))
}

/* ===== Subscription records ===== */

func recordDBKey(id fund.TokenID) []byte {
	return tokenDBKey("subtime-record-", id)
}

var tokenIndexDBKey = []byte("subtime-tokens")

func writeRecords(w database.KeyValueWriter, l ledger.Ledger) error {
	ids := l.Tokens()
	idx := make([]byte, 0, len(ids)*8)
	for _, id := range ids {
		idx = binary.BigEndian.AppendUint64(idx, uint64(id))
		rec, ok := l.Get(id)
		if !ok {
			return fmt.Errorf("token %d: %w", id, ledger.ErrNotFound)
		}
		if err := w.Put(recordDBKey(id), rec.Bytes()); err != nil {
			return err
		}
	}
	return w.Put(tokenIndexDBKey, idx)
}

func readRecords(r database.KeyValueReader, l ledger.Ledger) error {
	idx, err := r.Get(tokenIndexDBKey)
	if err != nil {
		return err
	}
	if len(idx)%8 != 0 {
		return fmt.Errorf("token index is %d bytes; want a multiple of 8", len(idx))
	}
	for off := 0; off < len(idx); off += 8 {
		id := fund.TokenID(binary.BigEndian.Uint64(idx[off:]))
		buf, err := r.Get(recordDBKey(id))
		if err != nil {
			return fmt.Errorf("token %d: %w", id, err)
		}
		rec, err := ledger.RecordFromBytes(buf)
		if err != nil {
			return fmt.Errorf("token %d: %w", id, err)
		}
		l.Restore(id, rec)
	}
	return nil
}

/* ===== Claim tracker and tip jar ===== */

var (
	trackerDBKey = []byte("subtime-epochs")
	jarDBKey     = []byte("subtime-tips")
)

// WriteState persists the contract's entire accounting state. The host is
// expected to pass a batch or versioned view so the write is atomic with the
// triggering operation.
func (c *Contract) WriteState(w database.KeyValueWriter) error {
	if err := writeRecords(w, c.ledger); err != nil {
		return err
	}
	if err := w.Put(trackerDBKey, c.tracker.Bytes()); err != nil {
		return err
	}
	return w.Put(jarDBKey, c.jar.Bytes())
}

// ReadState replaces the contract's accounting state with the persisted one.
// The stored epoch size must match the configured one.
func (c *Contract) ReadState(r database.KeyValueReader) error {
	buf, err := r.Get(trackerDBKey)
	if err != nil {
		return err
	}
	tracker, err := epoch.FromBytes(buf)
	if err != nil {
		return err
	}
	if got := tracker.Size(); got != c.cfg.EpochSize {
		return fmt.Errorf("%w: stored epoch size %d; configured %d", ErrInvalidConfig, got, c.cfg.EpochSize)
	}

	buf, err = r.Get(jarDBKey)
	if err != nil {
		return err
	}
	jar, err := tips.JarFromBytes(buf)
	if err != nil {
		return err
	}

	if err := readRecords(r, c.ledger); err != nil {
		return err
	}
	c.tracker = tracker
	c.jar = jar
	return nil
}
