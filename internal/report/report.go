// Package report writes an archived copy of a supply check as a JSON file.
//
// Files are named {prefix}-{YYYYMMDD-HHMMSS}.json so repeated runs build a
// history that can be diffed block over block.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmagro/sherpax-supply/internal/metrics"
	"github.com/dmagro/sherpax-supply/internal/supply"
)

// MillisDuration marshals a time.Duration as an integer millisecond count.
type MillisDuration time.Duration

func (d MillisDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).Milliseconds())
}

// Call is one RPC method's statistics over the run.
type Call struct {
	Method       string         `json:"method"`
	Total        int            `json:"total"`
	Failures     int            `json:"failures"`
	AvgLatencyMS MillisDuration `json:"avg_latency_ms"`
	P50LatencyMS MillisDuration `json:"p50_latency_ms"`
	P95LatencyMS MillisDuration `json:"p95_latency_ms"`
	MaxLatencyMS MillisDuration `json:"max_latency_ms"`
}

// Report is the archived form of one run. Amounts are decimal strings.
type Report struct {
	Timestamp  time.Time         `json:"timestamp"`
	Chain      string            `json:"chain,omitempty"`
	Endpoint   string            `json:"endpoint"`
	Block      uint32            `json:"block"`
	BlockHash  string            `json:"block_hash"`
	Accounts   uint32            `json:"accounts"`
	ElapsedSec uint64            `json:"elapsed_sec"`
	Accounting string            `json:"accounting"`
	Amounts    map[string]string `json:"amounts"`

	// Checked is false when the identity check was not requested.
	Checked   bool    `json:"checked"`
	Invariant *string `json:"invariant_error,omitempty"`

	Calls []Call `json:"calls,omitempty"`
}

// Amounts flattens m into the fields that apply to its accounting policy.
func Amounts(m supply.Metrics) map[string]string {
	out := map[string]string{
		"treasury_balance":              m.TreasuryBalance.String(),
		"transferable_exclude_treasury": m.TransferableExcludeTreasury.String(),
		"reserved":                      m.Reserved.String(),
	}
	if m.Accounting == supply.FixedSupply {
		out["vesting_locking"] = m.VestingLocking.String()
		out["vote_locking"] = m.VoteLocking.String()
	} else {
		out["locked"] = m.Locked.String()
		out["total_supply"] = m.TotalSupply.String()
	}
	return out
}

// Calls converts collector output into report rows.
func Calls(ms []*metrics.MethodMetrics) []Call {
	out := make([]Call, 0, len(ms))
	for _, m := range ms {
		out = append(out, Call{
			Method:       m.Method,
			Total:        m.TotalCalls,
			Failures:     m.Failures,
			AvgLatencyMS: MillisDuration(m.LatencyAvg),
			P50LatencyMS: MillisDuration(m.LatencyP50),
			P95LatencyMS: MillisDuration(m.LatencyP95),
			MaxLatencyMS: MillisDuration(m.LatencyMax),
		})
	}
	return out
}

// WriteJSON writes data as indented JSON to dir/{prefix}-{timestamp}.json,
// creating dir if needed, and returns the file path.
func WriteJSON(dir string, data interface{}, prefix string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	filename := fmt.Sprintf("%s-%s.json", prefix, now.Format("20060102-150405"))
	path := filepath.Join(dir, filename)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return "", fmt.Errorf("failed to encode JSON: %w", err)
	}
	return path, nil
}
