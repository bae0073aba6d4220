package commands

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/inconshreveable/log15"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmagro/sherpax-supply/internal/chain"
	"github.com/dmagro/sherpax-supply/internal/chain/chaintest"
	"github.com/dmagro/sherpax-supply/internal/config"
	"github.com/dmagro/sherpax-supply/internal/supply"
)

func quietLogger() log15.Logger {
	l := log15.New()
	l.SetHandler(log15.DiscardHandler())
	return l
}

func treasuryID(t *testing.T, cfg *config.Config) chain.AccountID {
	t.Helper()
	id, err := cfg.TreasuryID()
	require.NoError(t, err)
	return id
}

func newOptions(cfg *config.Config, out *bytes.Buffer, details bool) CheckBalanceOptions {
	return CheckBalanceOptions{
		Config:       cfg,
		PrintDetails: details,
		Stdout:       out,
		Stderr:       &bytes.Buffer{},
		Logger:       quietLogger(),
	}
}

func readLines(t *testing.T, b []byte) []map[string]json.RawMessage {
	t.Helper()
	var out []map[string]json.RawMessage
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var m map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

func TestCheckBalanceWholeSupply(t *testing.T) {
	cfg := config.Default()
	src := chaintest.New(
		chain.AccountRecord{ID: chaintest.ID(1), Data: chaintest.Data(100, 0, 0, 0)},
		chain.AccountRecord{ID: chaintest.ID(2), Data: chaintest.Data(50, 10, 5, 5)},
		chain.AccountRecord{ID: chaintest.ID(3), Data: chaintest.Data(0, 0, 0, 0)},
	)
	src.Balances[treasuryID(t, cfg)] = chaintest.Data(20, 0, 0, 0)

	t.Run("summary_only", func(t *testing.T) {
		var out bytes.Buffer
		report, err := CheckBalance(context.Background(), src, newOptions(cfg, &out, false))
		require.NoError(t, err)
		assert.False(t, report.Checked)

		assert.Equal(t,
			`{"treasury_balance":"20","transferable_exclude_treasury":"125","locked":"5","reserved":"10","block_number":100}`+"\n",
			out.String())
	})

	t.Run("with_details", func(t *testing.T) {
		var out bytes.Buffer
		report, err := CheckBalance(context.Background(), src, newOptions(cfg, &out, true))
		require.NoError(t, err)
		assert.True(t, report.Checked)
		assert.NoError(t, report.Invariant)

		lines := readLines(t, out.Bytes())
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], "origin")
		assert.JSONEq(t, `160`, string(lines[0]["total_supply"]))
		assert.JSONEq(t, `125`, string(lines[0]["transferable_exclude_treasury"]))
		assert.JSONEq(t, `"125"`, string(lines[1]["transferable_exclude_treasury"]))
	})
}

func TestCheckBalanceBlockOverride(t *testing.T) {
	cfg := config.Default()
	src := chaintest.New(chain.AccountRecord{ID: chaintest.ID(1), Data: chaintest.Data(1, 0, 0, 0)})
	src.Balances[treasuryID(t, cfg)] = chaintest.Data(0, 0, 0, 0)

	var out bytes.Buffer
	opts := newOptions(cfg, &out, false)
	n := uint32(12)
	opts.BlockNumber = &n

	_, err := CheckBalance(context.Background(), src, opts)
	require.NoError(t, err)
	lines := readLines(t, out.Bytes())
	require.Len(t, lines, 1)
	assert.JSONEq(t, `12`, string(lines[0]["block_number"]))
}

func TestCheckBalanceTransportFaultAtCheckpoint(t *testing.T) {
	cfg := config.Default()
	src := chaintest.New()
	for i := uint32(0); i < 12000; i++ {
		src.Put(chaintest.ID(i), chaintest.Data(1, 0, 0, 0))
	}
	src.Balances[treasuryID(t, cfg)] = chaintest.Data(0, 0, 0, 0)
	src.FaultAfter = 10000
	src.Fault = fmt.Errorf("%w: fetch keys page 11: connection reset", chain.ErrConnection)

	var out bytes.Buffer
	report, err := CheckBalance(context.Background(), src, newOptions(cfg, &out, true))
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, chain.ErrConnection))

	lines := readLines(t, out.Bytes())
	require.Len(t, lines, 1, "only the progress line before the fault")
	assert.Contains(t, lines[0], "origin")
	var origin struct {
		Accounts uint32 `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(lines[0]["origin"], &origin))
	assert.Equal(t, uint32(10000), origin.Accounts)
}

func TestCheckBalanceProgressLines(t *testing.T) {
	cfg := config.Default()
	src := chaintest.New()
	for i := uint32(0); i < 25000; i++ {
		src.Put(chaintest.ID(i), chaintest.Data(1, 0, 0, 0))
	}
	src.Balances[treasuryID(t, cfg)] = chaintest.Data(0, 0, 0, 0)

	var out bytes.Buffer
	_, err := CheckBalance(context.Background(), src, newOptions(cfg, &out, true))
	require.NoError(t, err)

	lines := readLines(t, out.Bytes())
	require.Len(t, lines, 2+1+1, "two progress lines, the final verbose line and the summary")
	var prev uint32
	for _, l := range lines[:3] {
		var origin struct {
			Accounts uint32 `json:"accounts"`
		}
		require.NoError(t, json.Unmarshal(l["origin"], &origin))
		assert.GreaterOrEqual(t, origin.Accounts, prev)
		prev = origin.Accounts
	}
	assert.Equal(t, uint32(25000), prev)
}

func TestCheckBalanceFixedSupplyViolation(t *testing.T) {
	cfg := config.Default()
	cfg.Report.Accounting = string(supply.FixedSupply)
	src := chaintest.New(
		chain.AccountRecord{ID: chaintest.ID(1), Data: chaintest.Data(1000, 30, 300, 100)},
	)
	src.Balances[treasuryID(t, cfg)] = chaintest.Data(50, 0, 0, 0)

	var out bytes.Buffer
	report, err := CheckBalance(context.Background(), src, newOptions(cfg, &out, true))
	require.Error(t, err)
	assert.True(t, errors.Is(err, supply.ErrInvariantViolation))
	require.NotNil(t, report)
	assert.True(t, report.Checked)
	assert.Equal(t, err, report.Invariant)

	lines := readLines(t, out.Bytes())
	require.Len(t, lines, 1, "no summary after a failed check")
	assert.JSONEq(t, `200`, string(lines[0]["vesting_locking"]))
	assert.JSONEq(t, `100`, string(lines[0]["vote_locking"]))
}

func TestCheckBalanceFixedSupplyHolds(t *testing.T) {
	cfg := config.Default()
	cfg.Report.Accounting = string(supply.FixedSupply)
	cfg.Report.ExpectedTotalSupply = "1030"
	src := chaintest.New(
		chain.AccountRecord{ID: chaintest.ID(1), Data: chaintest.Data(1000, 30, 300, 100)},
	)
	src.Balances[treasuryID(t, cfg)] = chaintest.Data(50, 0, 0, 0)

	var out bytes.Buffer
	_, err := CheckBalance(context.Background(), src, newOptions(cfg, &out, true))
	require.NoError(t, err)

	lines := readLines(t, out.Bytes())
	require.Len(t, lines, 2)
	assert.JSONEq(t, `"650"`, string(lines[1]["transferable_exclude_treasury"]))
	assert.JSONEq(t, `"200"`, string(lines[1]["vesting_locking"]))
	assert.JSONEq(t, `"100"`, string(lines[1]["vote_locking"]))
	assert.JSONEq(t, `"30"`, string(lines[1]["reserved"]))
}

func TestCheckBalanceMissingTreasury(t *testing.T) {
	cfg := config.Default()
	src := chaintest.New(chain.AccountRecord{ID: chaintest.ID(1), Data: chaintest.Data(1, 0, 0, 0)})

	var out bytes.Buffer
	_, err := CheckBalance(context.Background(), src, newOptions(cfg, &out, true))
	require.Error(t, err)
	assert.True(t, errors.Is(err, chain.ErrConfiguration))
	assert.Empty(t, out.String())
}

func TestCheckBalanceUnknownAccounting(t *testing.T) {
	cfg := config.Default()
	cfg.Report.Accounting = "circulating"
	src := chaintest.New()
	src.Balances[treasuryID(t, cfg)] = chaintest.Data(50, 0, 0, 0)

	var out bytes.Buffer
	_, err := CheckBalance(context.Background(), src, newOptions(cfg, &out, true))
	require.Error(t, err)
	assert.True(t, errors.Is(err, chain.ErrConfiguration))
	assert.Equal(t, 0, src.Enumerations)
	assert.Empty(t, out.String())
}
