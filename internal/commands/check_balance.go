// Package commands implements the supply checker's command flows.
package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/inconshreveable/log15"
	"golang.org/x/sync/errgroup"
	"lukechampine.com/uint128"

	"github.com/dmagro/sherpax-supply/internal/balance"
	"github.com/dmagro/sherpax-supply/internal/chain"
	"github.com/dmagro/sherpax-supply/internal/config"
	"github.com/dmagro/sherpax-supply/internal/metrics"
	"github.com/dmagro/sherpax-supply/internal/output"
	"github.com/dmagro/sherpax-supply/internal/report"
	"github.com/dmagro/sherpax-supply/internal/rpc"
	"github.com/dmagro/sherpax-supply/internal/supply"
)

// CheckBalanceOptions are the resolved inputs of one check-balance run.
type CheckBalanceOptions struct {
	Config       *config.Config
	BlockNumber  *uint32   // nil = best block
	PrintDetails bool      // emit progress records and check the identity
	Table        bool      // render a terminal summary on Stderr
	ArchiveDir   string    // when set, write a JSON copy of the run there
	Start        time.Time // elapsed is measured from here; zero = now
	Stdout       io.Writer
	Stderr       io.Writer
	Logger       log15.Logger
}

// Report is the outcome of a check-balance run.
type Report struct {
	Result    *balance.Result
	Metrics   supply.Metrics
	Invariant error // set when the identity check ran and failed
	Checked   bool
}

// ChainInfo is what the node says about itself. Both fields are best-effort.
type ChainInfo struct {
	Name       string
	Properties *rpc.ChainProperties
}

// RunCheckBalance connects to the configured node and runs the supply check.
func RunCheckBalance(ctx context.Context, opts CheckBalanceOptions) error {
	cfg := opts.Config
	if opts.Start.IsZero() {
		opts.Start = time.Now()
	}
	if opts.Logger == nil {
		opts.Logger = NewLogger(opts.Stderr)
	}
	logger := opts.Logger

	collector := metrics.NewCollector()
	client, err := rpc.Dial(ctx, rpc.ClientConfig{
		URL:      cfg.Node.URL,
		Timeout:  cfg.Node.Timeout,
		Recorder: collector,
		Logger:   logger.New("module", "rpc"),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", chain.ErrConnection, err)
	}
	defer client.Close()

	info := FetchChainInfo(ctx, client, logger)
	if info.Properties != nil && info.Properties.SS58Format != nil && cfg.Chain.SS58Prefix == nil {
		if _, prefix, err := chain.DecodeSS58(cfg.Chain.Treasury); err == nil && prefix != *info.Properties.SS58Format {
			logger.Warn("treasury address prefix differs from chain", "address", prefix, "chain", *info.Properties.SS58Format)
		}
	}

	src := chain.NewSubstrate(client, cfg.Node.PageSize, logger.New("module", "chain"))

	run, err := CheckBalance(ctx, src, opts)
	if run == nil {
		return err
	}
	calls := collector.Calculate()

	if opts.ArchiveDir != "" {
		path, werr := archive(opts.ArchiveDir, cfg.Node.URL, info, run, calls, opts.Start)
		if werr != nil {
			logger.Warn("failed to archive report", "dir", opts.ArchiveDir, "err", werr)
		} else {
			fmt.Fprintf(opts.Stderr, "Report written to: %s\n", path)
		}
	}

	if opts.Table {
		summary := &output.Summary{
			Chain:     info.Name,
			Block:     run.Result.Snapshot.Block,
			BlockHash: string(run.Result.BlockHash),
			Accounts:  run.Result.Snapshot.Accounts,
			Elapsed:   time.Since(opts.Start),
			Metrics:   run.Metrics,
			Invariant: run.Invariant,
			Checked:   run.Checked,
			Calls:     calls,
		}
		if info.Properties != nil {
			summary.TokenSymbol = info.Properties.TokenSymbol
			summary.Decimals = info.Properties.TokenDecimals
		}
		output.RenderSummaryTerminal(opts.Stderr, summary)
	}
	return err
}

func archive(dir, endpoint string, info ChainInfo, r *Report, calls []*metrics.MethodMetrics, now time.Time) (string, error) {
	snap := r.Result.Snapshot
	data := report.Report{
		Timestamp:  now.UTC(),
		Chain:      info.Name,
		Endpoint:   endpoint,
		Block:      snap.Block,
		BlockHash:  string(r.Result.BlockHash),
		Accounts:   snap.Accounts,
		ElapsedSec: snap.Elapsed,
		Accounting: string(r.Metrics.Accounting),
		Amounts:    report.Amounts(r.Metrics),
		Checked:    r.Checked,
		Calls:      report.Calls(calls),
	}
	if r.Invariant != nil {
		msg := r.Invariant.Error()
		data.Invariant = &msg
	}
	return report.WriteJSON(dir, data, "check-balance", now)
}

// FetchChainInfo asks the node for its name and properties concurrently.
// Failures are logged and leave the corresponding field empty.
func FetchChainInfo(ctx context.Context, client *rpc.Client, logger log15.Logger) ChainInfo {
	var info ChainInfo

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		name, err := client.SystemChain(gctx)
		if err != nil {
			logger.Debug("system_chain unavailable", "err", err)
			return nil
		}
		info.Name = name
		return nil
	})
	g.Go(func() error {
		props, err := client.SystemProperties(gctx)
		if err != nil {
			logger.Debug("system_properties unavailable", "err", err)
			return nil
		}
		info.Properties = props
		return nil
	})
	_ = g.Wait()

	if info.Name != "" {
		logger.Info("connected to chain", "chain", info.Name, "url", client.URL())
	}
	return info
}

// CheckBalance enumerates src and writes the report lines to opts.Stdout.
//
// With PrintDetails, a verbose record is written every ProgressEvery accounts
// and once more after enumeration, then the accounting identity is checked.
// The compact summary is written last, and only when every step succeeded.
// The returned Report is nil if enumeration did not complete.
func CheckBalance(ctx context.Context, src chain.Source, opts CheckBalanceOptions) (*Report, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = NewLogger(opts.Stderr)
	}

	treasury, err := cfg.TreasuryID()
	if err != nil {
		return nil, err
	}
	accounting, err := cfg.Accounting()
	if err != nil {
		return nil, err
	}
	fixedTotal, err := supply.ParseAmount(cfg.Report.ExpectedTotalSupply)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chain.ErrConfiguration, err)
	}

	emitter := output.NewEmitter(opts.Stdout)

	runOpts := balance.Options{
		BlockNumber:     opts.BlockNumber,
		Treasury:        treasury,
		TreasuryAddress: cfg.Chain.Treasury,
		Start:           opts.Start,
		Logger:          logger.New("module", "balance"),
	}
	if opts.PrintDetails {
		runOpts.ProgressEvery = cfg.Report.ProgressEvery
		runOpts.Progress = func(snap balance.Snapshot, treasury uint128.Uint128) error {
			return emitter.EmitSnapshot(snap, treasury, nil)
		}
	}

	res, err := balance.Run(ctx, src, runOpts)
	if err != nil {
		return nil, err
	}

	m, err := supply.Calculate(accounting, res.Snapshot, res.TreasuryBalance)
	if err != nil {
		return nil, err
	}
	out := &Report{Result: res, Metrics: m}

	if opts.PrintDetails {
		if err := emitter.EmitSnapshot(res.Snapshot, res.TreasuryBalance, &m); err != nil {
			logger.Warn("final snapshot not written", "err", err)
		}
		out.Checked = true
		if err := supply.Validate(m, fixedTotal); err != nil {
			out.Invariant = err
			logger.Error("supply check failed", "accounting", accounting, "err", err)
			return out, err
		}
		logger.Info("supply check passed", "accounting", accounting, "accounts", res.Snapshot.Accounts)
	}

	if err := emitter.EmitSummary(m, res.Snapshot.Block); err != nil {
		return out, err
	}
	return out, nil
}
