package main

import (
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dmagro/sherpax-supply/internal/commands"
	"github.com/dmagro/sherpax-supply/internal/config"
	"github.com/dmagro/sherpax-supply/internal/output"
)

func checkBalanceCmd() *cobra.Command {
	var (
		url          string
		blockNumber  uint32
		printDetails bool
		accounting   string
		treasury     string
		showTable    bool
		archiveDir   string
	)

	cmd := &cobra.Command{
		Use:   "check-balance",
		Short: "Sum every account balance at one block and print the supply report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
			explicit := cmd.Root().PersistentFlags().Changed("config")

			cfg, err := config.Load(cfgPath, explicit)
			if err != nil {
				return err
			}
			if url != "" {
				cfg.Node.URL = url
			}
			if accounting != "" {
				cfg.Report.Accounting = strings.ToLower(accounting)
			}
			if treasury != "" {
				cfg.Chain.Treasury = treasury
			}
			if archiveDir != "" {
				cfg.Report.ArchiveDir = archiveDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			opts := commands.CheckBalanceOptions{
				Config:       cfg,
				PrintDetails: printDetails,
				Table:        showTable,
				ArchiveDir:   cfg.Report.ArchiveDir,
				Start:        start,
				Stdout:       cmd.OutOrStdout(),
				Stderr:       cmd.ErrOrStderr(),
			}
			if cmd.Flags().Changed("block-number") {
				opts.BlockNumber = &blockNumber
			}
			if showTable && !isatty.IsTerminal(os.Stderr.Fd()) {
				output.DisableColors()
			}

			return commands.RunCheckBalance(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Node WebSocket endpoint (overrides node.url)")
	cmd.Flags().Uint32Var(&blockNumber, "block-number", 0, "Block height to report at (default: best block)")
	cmd.Flags().BoolVar(&printDetails, "print-details", false, "Print progress records and check the supply identity")
	cmd.Flags().StringVar(&accounting, "accounting", "", "Accounting policy: whole-supply|fixed-supply (overrides report.accounting)")
	cmd.Flags().StringVar(&treasury, "treasury", "", "Treasury SS58 address (overrides chain.treasury)")
	cmd.Flags().BoolVar(&showTable, "table", false, "Render a summary table on stderr")
	cmd.Flags().StringVar(&archiveDir, "archive-dir", "", "Write a timestamped JSON copy of the run to this directory")

	return cmd
}
