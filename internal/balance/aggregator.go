// Package balance drives the account enumeration and keeps the running
// balance totals the supply report is derived from.
package balance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inconshreveable/log15"
	"lukechampine.com/uint128"

	"github.com/dmagro/sherpax-supply/internal/chain"
)

// DefaultProgressEvery is the account interval between progress snapshots.
const DefaultProgressEvery = 10000

// ErrOverflow is returned when a running total exceeds the u128 range.
var ErrOverflow = errors.New("balance total overflows u128")

// Snapshot holds running totals over the accounts seen so far. Totals only
// grow during a run.
//
// Locked and Transferable are accumulated per account: Locked adds
// max(misc_frozen, fee_frozen), Transferable adds free minus that lock
// (saturating at zero).
type Snapshot struct {
	Free         uint128.Uint128
	Reserved     uint128.Uint128
	MiscFrozen   uint128.Uint128
	FeeFrozen    uint128.Uint128
	Locked       uint128.Uint128
	Transferable uint128.Uint128
	Accounts     uint32
	Elapsed      uint64 // wall-clock seconds since the run started
	Block        uint32
	Treasury     string
}

// Add folds one account into the totals.
func (s *Snapshot) Add(d chain.AccountData) error {
	locked := Max(d.MiscFrozen, d.FeeFrozen)
	transferable := SaturatingSub(d.Free, locked)

	next := *s
	var ok bool
	for _, step := range []struct {
		dst *uint128.Uint128
		v   uint128.Uint128
	}{
		{&next.Free, d.Free},
		{&next.Reserved, d.Reserved},
		{&next.MiscFrozen, d.MiscFrozen},
		{&next.FeeFrozen, d.FeeFrozen},
		{&next.Locked, locked},
		{&next.Transferable, transferable},
	} {
		if *step.dst, ok = CheckedAdd(*step.dst, step.v); !ok {
			return ErrOverflow
		}
	}
	next.Accounts++
	*s = next
	return nil
}

// Options configures Run.
type Options struct {
	// BlockNumber pins the run to a height; nil means the node's best block.
	BlockNumber *uint32

	Treasury        chain.AccountID
	TreasuryAddress string // display form, copied into every snapshot

	// ProgressEvery and Progress enable periodic snapshots. Progress also
	// receives the treasury balance read before enumeration. A Progress
	// error is logged and the run continues.
	ProgressEvery uint32
	Progress      func(snap Snapshot, treasury uint128.Uint128) error

	Start  time.Time // defaults to the time Run is called
	Logger log15.Logger
}

// Result is the outcome of a completed run.
type Result struct {
	Snapshot        Snapshot
	TreasuryBalance uint128.Uint128
	BlockHash       chain.Hash
}

// Run resolves the target block, reads the treasury balance and sums every
// account in state at that block. Any source error aborts the run; progress
// snapshots already emitted stay valid.
func Run(ctx context.Context, src chain.Source, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log15.New("module", "balance")
		logger.SetHandler(log15.DiscardHandler())
	}
	start := opts.Start
	if start.IsZero() {
		start = time.Now()
	}

	var (
		number uint32
		hash   chain.Hash
		err    error
	)
	if opts.BlockNumber != nil {
		number = *opts.BlockNumber
		hash, err = src.BlockHash(ctx, number)
	} else {
		number, hash, err = src.LatestBlock(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve block: %w", err)
	}
	logger.Info("resolved block", "number", number, "hash", hash)

	treasury, err := src.Account(ctx, opts.Treasury, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: treasury %s: %w", chain.ErrConfiguration, opts.TreasuryAddress, err)
	}
	logger.Info("treasury balance", "address", opts.TreasuryAddress, "free", treasury.Free)

	snap := Snapshot{Block: number, Treasury: opts.TreasuryAddress}

	it := src.Accounts(ctx, hash)
	for it.Next(ctx) {
		rec := it.Record()
		if err := snap.Add(rec.Data); err != nil {
			return nil, fmt.Errorf("account %s: %w", rec.ID.Hex(), err)
		}

		if opts.Progress != nil && opts.ProgressEvery > 0 && snap.Accounts%opts.ProgressEvery == 0 {
			snap.Elapsed = elapsedSeconds(start)
			if err := opts.Progress(snap, treasury.Free); err != nil {
				logger.Warn("progress report failed", "accounts", snap.Accounts, "err", err)
			}
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("enumerate accounts after %d: %w", snap.Accounts, err)
	}

	snap.Elapsed = elapsedSeconds(start)
	logger.Info("enumeration complete", "accounts", snap.Accounts, "elapsed", snap.Elapsed)

	return &Result{Snapshot: snap, TreasuryBalance: treasury.Free, BlockHash: hash}, nil
}

func elapsedSeconds(start time.Time) uint64 {
	d := time.Since(start)
	if d < 0 {
		return 0
	}
	return uint64(d / time.Second)
}
