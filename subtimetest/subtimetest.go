// Copyright (C) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package subtimetest provides in-memory stand-ins for the host ledgers that
// a subscription contract is wired to, plus logging helpers.
package subtimetest

import (
	"errors"
	"fmt"

	"github.com/ava-labs/libevm/common"
	"github.com/holiman/uint256"

	"github.com/ava-labs/subtime/fund"
)

// A TokenStub is an in-memory fungible ledger. Transfers debit and credit
// [uint256.Int] balances; a balance query on an account exceeding 64 bits is
// an error as subscription amounts are always uint64.
type TokenStub struct {
	self     common.Address
	balances map[common.Address]*uint256.Int
	nextErr  error
}

// NewTokenStub constructs a [TokenStub] treating `self` as the sender of
// plain transfers, mirroring a token contract moving its own funds.
func NewTokenStub(self common.Address) *TokenStub {
	return &TokenStub{
		self:     self,
		balances: make(map[common.Address]*uint256.Int),
	}
}

// FailNext makes the next transfer fail with `err`, for exercising rollback
// paths.
func (s *TokenStub) FailNext(err error) {
	s.nextErr = err
}

func (s *TokenStub) balance(addr common.Address) *uint256.Int {
	b, ok := s.balances[addr]
	if !ok {
		b = new(uint256.Int)
		s.balances[addr] = b
	}
	return b
}

// Fund credits the account, creating it if necessary.
func (s *TokenStub) Fund(addr common.Address, amount fund.Amount) {
	b := s.balance(addr)
	b.Add(b, amount.U256())
}

func (s *TokenStub) TransferFrom(from, to common.Address, amount fund.Amount) error {
	if err := s.nextErr; err != nil {
		s.nextErr = nil
		return err
	}
	a := amount.U256()
	src := s.balance(from)
	if src.Lt(a) {
		return fmt.Errorf("balance %s of %s below transfer of %d", src, from, amount)
	}
	src.Sub(src, a)
	dst := s.balance(to)
	dst.Add(dst, a)
	return nil
}

func (s *TokenStub) Transfer(to common.Address, amount fund.Amount) error {
	return s.TransferFrom(s.self, to, amount)
}

func (s *TokenStub) BalanceOf(addr common.Address) (fund.Amount, error) {
	b := s.balance(addr)
	if !b.IsUint64() {
		return 0, fmt.Errorf("balance %s of %s overflows uint64", b, addr)
	}
	return fund.Amount(b.Uint64()), nil
}

// An IdentityStub is an in-memory non-fungible ledger mapping token ids to
// owners.
type IdentityStub struct {
	owners  map[fund.TokenID]common.Address
	nextErr error
}

// NewIdentityStub constructs an empty [IdentityStub].
func NewIdentityStub() *IdentityStub {
	return &IdentityStub{owners: make(map[fund.TokenID]common.Address)}
}

// FailNext makes the next mint fail with `err`.
func (s *IdentityStub) FailNext(err error) {
	s.nextErr = err
}

func (s *IdentityStub) Mint(to common.Address, id fund.TokenID) error {
	if err := s.nextErr; err != nil {
		s.nextErr = nil
		return err
	}
	if _, ok := s.owners[id]; ok {
		return fmt.Errorf("token %d already minted", id)
	}
	s.owners[id] = to
	return nil
}

func (s *IdentityStub) OwnerOf(id fund.TokenID) (common.Address, error) {
	owner, ok := s.owners[id]
	if !ok {
		return common.Address{}, errors.New("token not minted")
	}
	return owner, nil
}

func (s *IdentityStub) Exists(id fund.TokenID) bool {
	_, ok := s.owners[id]
	return ok
}

// Transfer reassigns ownership, mirroring a host-side NFT transfer that the
// contract is oblivious to.
func (s *IdentityStub) Transfer(to common.Address, id fund.TokenID) error {
	if _, ok := s.owners[id]; !ok {
		return errors.New("token not minted")
	}
	s.owners[id] = to
	return nil
}
