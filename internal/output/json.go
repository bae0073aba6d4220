// Package output writes the supply report: one JSON object per line on
// standard output, and an optional human-readable summary table.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"lukechampine.com/uint128"

	"github.com/dmagro/sherpax-supply/internal/balance"
	"github.com/dmagro/sherpax-supply/internal/supply"
)

// Number marshals a u128 as a bare JSON number. Its text is the exact
// decimal value, so nothing is lost to float conversion on the way out.
type Number uint128.Uint128

func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(uint128.Uint128(n).String()), nil
}

// Origin is the verbose record's running totals.
type Origin struct {
	Free         Number `json:"free"`
	Locked       Number `json:"locked"`
	Reserved     Number `json:"reserved"`
	Transferable Number `json:"transferable"`
	MiscFrozen   Number `json:"misc_frozen"`
	FeeFrozen    Number `json:"fee_frozen"`
	Accounts     uint32 `json:"accounts"`
	Elapsed      uint64 `json:"elapsed"`
	Block        uint32 `json:"block"`
	Treasury     string `json:"treasury"`
}

// Verbose is the progress record. Derived fields are zero until the
// enumeration is complete.
type Verbose struct {
	Origin                      Origin  `json:"origin"`
	TransferableExcludeTreasury Number  `json:"transferable_exclude_treasury"`
	TreasuryBalance             Number  `json:"treasury_balance"`
	TotalSupply                 Number  `json:"total_supply"`
	VestingLocking              *Number `json:"vesting_locking,omitempty"`
	VoteLocking                 *Number `json:"vote_locking,omitempty"`
}

// NewVerbose builds a verbose record. m is nil for progress snapshots taken
// before the enumeration finished.
func NewVerbose(snap balance.Snapshot, treasury uint128.Uint128, m *supply.Metrics) Verbose {
	v := Verbose{
		Origin: Origin{
			Free:         Number(snap.Free),
			Locked:       Number(snap.Locked),
			Reserved:     Number(snap.Reserved),
			Transferable: Number(snap.Transferable),
			MiscFrozen:   Number(snap.MiscFrozen),
			FeeFrozen:    Number(snap.FeeFrozen),
			Accounts:     snap.Accounts,
			Elapsed:      snap.Elapsed,
			Block:        snap.Block,
			Treasury:     snap.Treasury,
		},
		TreasuryBalance: Number(treasury),
	}
	if m == nil {
		return v
	}

	v.TransferableExcludeTreasury = Number(m.TransferableExcludeTreasury)
	v.TotalSupply = Number(m.TotalSupply)
	if m.Accounting == supply.FixedSupply {
		vesting, vote := Number(m.VestingLocking), Number(m.VoteLocking)
		v.VestingLocking, v.VoteLocking = &vesting, &vote
	}
	return v
}

// WholeSupplySummary is the final record under whole-supply accounting.
// Amounts are decimal strings.
type WholeSupplySummary struct {
	TreasuryBalance             string `json:"treasury_balance"`
	TransferableExcludeTreasury string `json:"transferable_exclude_treasury"`
	Locked                      string `json:"locked"`
	Reserved                    string `json:"reserved"`
	BlockNumber                 uint32 `json:"block_number"`
}

// FixedSupplySummary is the final record under fixed-supply accounting.
type FixedSupplySummary struct {
	TreasuryBalance             string `json:"treasury_balance"`
	TransferableExcludeTreasury string `json:"transferable_exclude_treasury"`
	VestingLocking              string `json:"vesting_locking"`
	VoteLocking                 string `json:"vote_locking"`
	Reserved                    string `json:"reserved"`
	BlockNumber                 uint32 `json:"block_number"`
}

// NewSummary builds the compact record for m's accounting policy.
func NewSummary(m supply.Metrics, block uint32) interface{} {
	if m.Accounting == supply.FixedSupply {
		return FixedSupplySummary{
			TreasuryBalance:             m.TreasuryBalance.String(),
			TransferableExcludeTreasury: m.TransferableExcludeTreasury.String(),
			VestingLocking:              m.VestingLocking.String(),
			VoteLocking:                 m.VoteLocking.String(),
			Reserved:                    m.Reserved.String(),
			BlockNumber:                 block,
		}
	}
	return WholeSupplySummary{
		TreasuryBalance:             m.TreasuryBalance.String(),
		TransferableExcludeTreasury: m.TransferableExcludeTreasury.String(),
		Locked:                      m.Locked.String(),
		Reserved:                    m.Reserved.String(),
		BlockNumber:                 block,
	}
}

// Emitter writes records as single JSON lines.
type Emitter struct {
	w io.Writer
}

// NewEmitter returns an Emitter writing to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// EmitSnapshot writes a verbose record.
func (e *Emitter) EmitSnapshot(snap balance.Snapshot, treasury uint128.Uint128, m *supply.Metrics) error {
	return e.emit(NewVerbose(snap, treasury, m))
}

// EmitSummary writes the compact final record.
func (e *Emitter) EmitSummary(m supply.Metrics, block uint32) error {
	return e.emit(NewSummary(m, block))
}

func (e *Emitter) emit(v interface{}) error {
	// Encode appends the newline and issues a single Write.
	if err := json.NewEncoder(e.w).Encode(v); err != nil {
		return fmt.Errorf("write report line: %w", err)
	}
	return nil
}
