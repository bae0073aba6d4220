// Package chain defines the read-only view of chain state the supply report
// is computed from, and implements it for Substrate nodes.
package chain

import (
	"context"
	"errors"

	"lukechampine.com/uint128"
)

var (
	// ErrConnection marks transport failures talking to the node, either
	// while connecting or in the middle of an enumeration.
	ErrConnection = errors.New("connection error")

	// ErrNotFound marks a block height or account the node does not know.
	ErrNotFound = errors.New("not found")

	// ErrConfiguration marks an unusable treasury address: malformed, or
	// absent from chain state.
	ErrConfiguration = errors.New("configuration error")
)

// Hash is a block hash in its 0x-prefixed hex form. It pins every read to
// one consistent state snapshot.
type Hash string

// AccountData is the balance part of a System.Account entry, in the
// smallest token denomination.
type AccountData struct {
	Free       uint128.Uint128
	Reserved   uint128.Uint128
	MiscFrozen uint128.Uint128
	FeeFrozen  uint128.Uint128
}

// AccountRecord pairs an account with its balances.
type AccountRecord struct {
	ID   AccountID
	Data AccountData
}

// Source is the chain data contract the aggregator consumes.
type Source interface {
	// LatestBlock resolves the node's best block to its number and hash.
	LatestBlock(ctx context.Context) (uint32, Hash, error)

	// BlockHash maps a height to its canonical hash. Unknown heights fail
	// with ErrNotFound.
	BlockHash(ctx context.Context, number uint32) (Hash, error)

	// Account looks up one account at the given block. Accounts absent from
	// state fail with ErrNotFound.
	Account(ctx context.Context, id AccountID, at Hash) (AccountData, error)

	// Accounts enumerates every account in state at the given block. The
	// iterator is single-use; call Accounts again to start over.
	Accounts(ctx context.Context, at Hash) AccountIterator
}

// AccountIterator is a lazy, finite, forward-only sequence of accounts.
//
//	it := src.Accounts(ctx, hash)
//	for it.Next(ctx) {
//		rec := it.Record()
//		...
//	}
//	if err := it.Err(); err != nil { ... }
type AccountIterator interface {
	Next(ctx context.Context) bool
	Record() AccountRecord
	Err() error
}
