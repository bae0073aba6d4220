package output

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/shopspring/decimal"
	"lukechampine.com/uint128"

	"github.com/dmagro/sherpax-supply/internal/metrics"
	"github.com/dmagro/sherpax-supply/internal/supply"
)

// Colors for status indicators
var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// Summary holds everything the terminal summary shows.
type Summary struct {
	Chain       string
	TokenSymbol string
	Decimals    *uint8 // nil when the node did not report token decimals
	Block       uint32
	BlockHash   string
	Accounts    uint32
	Elapsed     time.Duration
	Metrics     supply.Metrics
	Invariant   error // result of the identity check, nil if it held or was skipped
	Checked     bool
	Calls       []*metrics.MethodMetrics
}

// DisableColors turns off ANSI colors, e.g. when stderr is not a terminal.
func DisableColors() {
	color.NoColor = true
}

// RenderSummaryTerminal writes a human-readable report to w.
func RenderSummaryTerminal(w io.Writer, s *Summary) {
	renderHeader(w, s)
	renderBalances(w, s)
	renderInvariant(w, s)
	renderCalls(w, s.Calls)
}

func renderHeader(w io.Writer, s *Summary) {
	chain := s.Chain
	if chain == "" {
		chain = "unknown chain"
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, bold("Supply Report: ")+cyan(chain))
	fmt.Fprintf(w, "  Block:    %s (%s)\n", cyan(humanize.Comma(int64(s.Block))), s.BlockHash)
	fmt.Fprintf(w, "  Accounts: %s in %s\n", humanize.Comma(int64(s.Accounts)), s.Elapsed.Round(time.Second))
	fmt.Fprintf(w, "  Policy:   %s\n", s.Metrics.Accounting)
	fmt.Fprintln(w)
}

func renderBalances(w io.Writer, s *Summary) {
	fmt.Fprintln(w, bold("Balances"))

	headerFmt := color.New(color.FgCyan, color.Underline).SprintfFunc()
	tbl := table.New("Component", "Raw", "Tokens").WithWriter(w)
	tbl.WithHeaderFormatter(headerFmt)

	m := s.Metrics
	row := func(name string, v uint128.Uint128) {
		tbl.AddRow(name, humanize.BigComma(v.Big()), formatTokens(v, s.Decimals, s.TokenSymbol))
	}

	row("Treasury", m.TreasuryBalance)
	row("Transferable (excl. treasury)", m.TransferableExcludeTreasury)
	if m.Accounting == supply.FixedSupply {
		row("Vesting locked", m.VestingLocking)
		row("Vote locked", m.VoteLocking)
	} else {
		row("Locked", m.Locked)
		row("Total supply", m.TotalSupply)
	}
	row("Reserved", m.Reserved)

	tbl.Print()
	fmt.Fprintln(w)
}

func renderInvariant(w io.Writer, s *Summary) {
	switch {
	case !s.Checked:
		return
	case s.Invariant == nil:
		fmt.Fprintf(w, "  %s Accounting identity holds\n\n", green("✓"))
	default:
		fmt.Fprintf(w, "  %s %v\n\n", red("✗"), s.Invariant)
	}
}

func renderCalls(w io.Writer, calls []*metrics.MethodMetrics) {
	if len(calls) == 0 {
		return
	}
	fmt.Fprintln(w, bold("RPC Calls"))

	headerFmt := color.New(color.FgCyan, color.Underline).SprintfFunc()
	tbl := table.New("Method", "Calls", "Failed", "avg", "p50", "p95", "Max").WithWriter(w)
	tbl.WithHeaderFormatter(headerFmt)

	for _, m := range calls {
		failed := fmt.Sprintf("%d", m.Failures)
		if m.Failures > 0 {
			failed = red(failed)
		}
		tbl.AddRow(
			m.Method,
			humanize.Comma(int64(m.TotalCalls)),
			failed,
			colorLatency(m.LatencyAvg),
			formatDuration(m.LatencyP50),
			formatDuration(m.LatencyP95),
			formatDuration(m.LatencyMax),
		)
	}

	tbl.Print()
	fmt.Fprintln(w)
}

// formatTokens renders a raw amount in whole tokens with four decimals.
func formatTokens(v uint128.Uint128, decimals *uint8, symbol string) string {
	if decimals == nil {
		return "—"
	}
	d := decimal.NewFromBigInt(v.Big(), -int32(*decimals))
	s := d.StringFixed(4)
	if symbol != "" {
		s += " " + symbol
	}
	return s
}

// colorLatency flags slow page fetches; full-state scans are dominated by them.
func colorLatency(d time.Duration) string {
	s := formatDuration(d)
	switch {
	case d == 0:
		return s
	case d < 100*time.Millisecond:
		return green(s)
	case d < 500*time.Millisecond:
		return yellow(s)
	default:
		return red(s)
	}
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "—"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
