package cmd

import (
	"fmt"
	"os"

	"catalog-reconciler/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "catalog-reconciler",
	Short: "Catalog Reconciliation Service",
	Long: `Catalog Reconciler audits catalog records against observations from
external sources. It proposes discrepancies and enrichments, tracks reviewer
decisions and commits accepted changes in reversible batches.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Console format with debug level gives readable ISO8601 timestamps on a terminal
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Println(err)
		}
		os.Exit(1)
	}
}
