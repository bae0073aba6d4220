// Package chaintest provides an in-memory chain.Source for tests.
package chaintest

import (
	"context"
	"fmt"

	"lukechampine.com/uint128"

	"github.com/dmagro/sherpax-supply/internal/chain"
)

// Source serves a fixed account set at every known block.
type Source struct {
	Best     uint32
	Known    map[uint32]bool // heights BlockHash resolves; nil means 0..Best
	Balances map[chain.AccountID]chain.AccountData
	Records  []chain.AccountRecord

	// FaultAfter > 0 makes enumeration fail with Fault once that many
	// records have been yielded.
	FaultAfter int
	Fault      error

	Enumerations int
}

// New returns a Source at best block 100 holding recs, in order.
func New(recs ...chain.AccountRecord) *Source {
	s := &Source{Best: 100, Balances: make(map[chain.AccountID]chain.AccountData)}
	for _, r := range recs {
		s.Put(r.ID, r.Data)
	}
	return s
}

// Put adds an account to both the point-lookup map and the enumeration.
func (s *Source) Put(id chain.AccountID, d chain.AccountData) {
	s.Balances[id] = d
	s.Records = append(s.Records, chain.AccountRecord{ID: id, Data: d})
}

// HashOf is the hash the fake assigns to a height.
func HashOf(number uint32) chain.Hash {
	return chain.Hash(fmt.Sprintf("0x%064x", number))
}

func (s *Source) LatestBlock(ctx context.Context) (uint32, chain.Hash, error) {
	return s.Best, HashOf(s.Best), nil
}

func (s *Source) BlockHash(ctx context.Context, number uint32) (chain.Hash, error) {
	known := number <= s.Best
	if s.Known != nil {
		known = s.Known[number]
	}
	if !known {
		return "", fmt.Errorf("%w: block %d", chain.ErrNotFound, number)
	}
	return HashOf(number), nil
}

func (s *Source) Account(ctx context.Context, id chain.AccountID, at chain.Hash) (chain.AccountData, error) {
	d, ok := s.Balances[id]
	if !ok {
		return chain.AccountData{}, fmt.Errorf("%w: account %s", chain.ErrNotFound, id.Hex())
	}
	return d, nil
}

func (s *Source) Accounts(ctx context.Context, at chain.Hash) chain.AccountIterator {
	s.Enumerations++
	return &iterator{src: s}
}

type iterator struct {
	src *Source
	pos int
	cur chain.AccountRecord
	err error
}

func (it *iterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if it.src.FaultAfter > 0 && it.pos == it.src.FaultAfter {
		it.err = it.src.Fault
		return false
	}
	if it.pos >= len(it.src.Records) {
		return false
	}
	it.cur = it.src.Records[it.pos]
	it.pos++
	return true
}

func (it *iterator) Record() chain.AccountRecord { return it.cur }

func (it *iterator) Err() error { return it.err }

// ID returns a deterministic account id derived from n.
func ID(n uint32) chain.AccountID {
	var id chain.AccountID
	id[0] = 0xee
	id[28], id[29], id[30], id[31] = byte(n>>24), byte(n>>16), byte(n>>8), byte(n)
	return id
}

// Data builds AccountData from small amounts.
func Data(free, reserved, misc, fee uint64) chain.AccountData {
	return chain.AccountData{
		Free:       uint128.From64(free),
		Reserved:   uint128.From64(reserved),
		MiscFrozen: uint128.From64(misc),
		FeeFrozen:  uint128.From64(fee),
	}
}
