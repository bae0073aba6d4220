// Package config loads the supply checker configuration from an optional
// YAML file, applies defaults, and validates the result.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dmagro/sherpax-supply/internal/chain"
	"github.com/dmagro/sherpax-supply/internal/supply"
)

// DefaultPath is where the config file is looked up when --config is not given.
const DefaultPath = "config/supply.yaml"

// DefaultTreasury is the SherpaX treasury account.
const DefaultTreasury = "5S7WgdAXVK7mh8REvXfk9LdHs3Xqu9B2E9zzY8e4LE8Gg2ZX"

// Config represents the root configuration structure loaded from YAML.
type Config struct {
	Node   Node   `yaml:"node"`
	Chain  Chain  `yaml:"chain"`
	Report Report `yaml:"report"`
}

// Node describes the RPC endpoint.
type Node struct {
	URL      string        `yaml:"url"`       // WebSocket endpoint (supports ${VAR} expansion)
	Timeout  time.Duration `yaml:"timeout"`   // Per-call deadline, e.g. "30s"
	PageSize uint32        `yaml:"page_size"` // Keys per state_getKeysPaged call, at most 1000
}

// Chain holds chain-specific settings.
type Chain struct {
	Treasury   string  `yaml:"treasury"`    // SS58 address of the treasury account
	SS58Prefix *uint16 `yaml:"ss58_prefix"` // Expected address prefix (optional)
}

// Report controls what is printed and how it is checked.
type Report struct {
	ProgressEvery       uint32 `yaml:"progress_every"`        // Accounts between progress lines
	Accounting          string `yaml:"accounting"`            // whole-supply | fixed-supply
	ExpectedTotalSupply string `yaml:"expected_total_supply"` // Decimal, used by fixed-supply
	ArchiveDir          string `yaml:"archive_dir"`           // Write a JSON copy of each run here (optional)
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Node: Node{
			URL:      "ws://localhost:9977",
			Timeout:  30 * time.Second,
			PageSize: chain.MaxPageSize,
		},
		Chain: Chain{
			Treasury: DefaultTreasury,
		},
		Report: Report{
			ProgressEvery:       10000,
			Accounting:          string(supply.WholeSupply),
			ExpectedTotalSupply: supply.DefaultFixedTotalSupply.String(),
		},
	}
}

// Validate checks every field and fills blanks with defaults. Suspicious
// but usable values produce a warning on stderr.
func (c *Config) Validate() error {
	def := Default()

	if c.Node.URL == "" {
		c.Node.URL = def.Node.URL
	}
	u, err := url.Parse(c.Node.URL)
	if err != nil {
		return fmt.Errorf("node.url: invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("node.url: invalid scheme %q (expected ws or wss)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("node.url: missing host")
	}

	if c.Node.Timeout < 0 {
		return fmt.Errorf("node.timeout must be >= 0")
	}
	if c.Node.Timeout == 0 {
		c.Node.Timeout = def.Node.Timeout
	}
	const low, high = 500 * time.Millisecond, 5 * time.Minute
	if c.Node.Timeout < low {
		fmt.Fprintf(os.Stderr, "Warning: node timeout is very low (%s); page requests may fail on large states\n", c.Node.Timeout)
	}
	if c.Node.Timeout > high {
		fmt.Fprintf(os.Stderr, "Warning: node timeout is very high (%s); a stalled node may take a long time to surface\n", c.Node.Timeout)
	}

	if c.Node.PageSize == 0 {
		c.Node.PageSize = def.Node.PageSize
	}
	if c.Node.PageSize > chain.MaxPageSize {
		return fmt.Errorf("node.page_size must be <= %d", chain.MaxPageSize)
	}

	if c.Chain.Treasury == "" {
		c.Chain.Treasury = def.Chain.Treasury
	}
	if _, err := c.TreasuryID(); err != nil {
		return err
	}

	if c.Report.ProgressEvery == 0 {
		c.Report.ProgressEvery = def.Report.ProgressEvery
	}
	if _, err := c.Accounting(); err != nil {
		return err
	}
	if c.Report.ExpectedTotalSupply == "" {
		c.Report.ExpectedTotalSupply = def.Report.ExpectedTotalSupply
	}
	if _, err := supply.ParseAmount(c.Report.ExpectedTotalSupply); err != nil {
		return fmt.Errorf("report.expected_total_supply: %w", err)
	}

	return nil
}

// TreasuryID decodes the treasury address. A malformed address, or one whose
// prefix differs from chain.ss58_prefix, is a configuration error.
func (c *Config) TreasuryID() (chain.AccountID, error) {
	id, prefix, err := chain.DecodeSS58(c.Chain.Treasury)
	if err != nil {
		return id, fmt.Errorf("chain.treasury: %w", err)
	}
	if c.Chain.SS58Prefix != nil && *c.Chain.SS58Prefix != prefix {
		return id, fmt.Errorf("chain.treasury: %w: address prefix %d, expected %d",
			chain.ErrConfiguration, prefix, *c.Chain.SS58Prefix)
	}
	return id, nil
}

// Accounting parses report.accounting. An unknown policy is a
// configuration error.
func (c *Config) Accounting() (supply.Accounting, error) {
	a, err := supply.ParseAccounting(c.Report.Accounting)
	if err != nil {
		return "", fmt.Errorf("report.accounting: %w: %w", chain.ErrConfiguration, err)
	}
	return a, nil
}

// Load reads a YAML configuration file and expands ${VAR} references
// against the environment. Callers apply overrides and then call Validate.
//
// When explicit is false a missing file is not an error and defaults are
// used; this is how the tool runs with no configuration at all.
func Load(path string, explicit bool) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// defaults only
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return cfg, nil
}

// LoadEnv reads KEY=VALUE pairs from .env in the working directory into the
// process environment, overriding existing values. A missing file is ignored.
func LoadEnv() error {
	err := godotenv.Overload(".env")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}
