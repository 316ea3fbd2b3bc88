package cmd

import (
	"context"
	"time"

	"catalog-reconciler/feature/integrity"
	"catalog-reconciler/feature/integrity/checks"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	fixFlag    bool
	stuckAfter time.Duration
)

type integrityChecks struct {
	structure, archive, schema, ledger bool
}

var allChecks = integrityChecks{structure: true, archive: true, schema: true, ledger: true}

// integrityCmd represents the integrity command
var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Perform integrity checks on the archive and the database",
	Long:  `Checks the archive layout, archived documents, the database schema and the consistency of candidates, history and batches.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd.Context(), allChecks)
	},
}

// structureCmd represents the integrity structure command
var structureCmd = &cobra.Command{
	Use:   "structure",
	Short: "Check and fix the archive folder structure",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd.Context(), integrityChecks{structure: true})
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Find and prune archived documents without a batch or run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd.Context(), integrityChecks{archive: true})
	},
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Check the database schema against the models",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd.Context(), integrityChecks{schema: true})
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Check candidates, history and batches for inconsistencies",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIntegrityChecks(cmd.Context(), integrityChecks{ledger: true})
	},
}

func init() {
	RootCmd.AddCommand(integrityCmd)
	integrityCmd.AddCommand(structureCmd, archiveCmd, schemaCmd, ledgerCmd)

	structureCmd.Flags().BoolVar(&fixFlag, "fix", false, "Create missing folders")
	archiveCmd.Flags().BoolVar(&fixFlag, "fix", false, "Remove orphaned documents")
	ledgerCmd.Flags().DurationVar(&stuckAfter, "stuck-after", integrity.DefaultStuckAfter, "Age at which a pending batch is reported")
}

func runIntegrityChecks(ctx context.Context, run integrityChecks) error {
	rt, err := cliRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	logg := rt.logger

	svc := integrity.NewService(rt.client, rt.cfg.Storage.Bucket, logg, rt.db)
	archived := rt.client != nil
	if (run.structure || run.archive) && !archived {
		logg.Warn("Archive storage is disabled, skipping archive checks")
	}

	if run.structure && archived {
		logg.Info("Checking folder structure...")
		missing, err := svc.CheckStructure(ctx)
		if err != nil {
			return err
		}
		if len(missing) == 0 {
			logg.Info("Structure is intact.")
		} else {
			logg.Warn("Missing folders detected", zap.Strings("missing", missing))
			if fixFlag {
				logg.Info("Fixing missing folders...")
				if err := svc.FixStructure(ctx, missing); err != nil {
					return err
				}
				logg.Info("Structure fixed successfully.")
			} else {
				logg.Info("Run with --fix to create missing folders.")
			}
		}
	}

	if run.archive && archived {
		logg.Info("Checking archived documents...")
		report, err := svc.CheckArchive(ctx)
		if err != nil {
			return err
		}
		if len(report.Orphans) == 0 {
			logg.Info("Archive is consistent.", zap.Int("scanned", report.Scanned))
		} else {
			logg.Warn("Orphaned documents detected", zap.Int("scanned", report.Scanned), zap.Strings("orphans", report.Orphans))
			if fixFlag {
				if err := svc.FixArchive(ctx, report.Orphans); err != nil {
					return err
				}
				logg.Info("Orphaned documents removed.")
			} else {
				logg.Info("Run with --fix to remove orphaned documents.")
			}
		}
	}

	if run.schema {
		logg.Info("Checking database schema...")
		report, err := svc.CheckSchema()
		if err != nil {
			return err
		}
		if report.Matched {
			logg.Info("Database schema matches the models.", zap.String("dialect", report.Dialect))
		} else {
			for _, t := range report.Tables {
				if !t.OK() {
					logg.Warn("Schema mismatch",
						zap.String("table", t.Table),
						zap.Bool("exists", t.Exists),
						zap.Strings("missing_columns", t.MissingColumns),
					)
				}
			}
		}
	}

	if run.ledger {
		logg.Info("Checking ledger consistency...")
		after := stuckAfter
		if after <= 0 {
			after = integrity.DefaultStuckAfter
		}
		report, err := checks.CheckLedger(ctx, rt.db, after)
		if err != nil {
			return err
		}
		if report.OK() {
			logg.Info("Ledger is consistent.")
		} else {
			logg.Warn("Ledger inconsistencies detected",
				zap.Strings("orphan_candidates", report.OrphanCandidates),
				zap.Strings("applied_without_history", report.AppliedWithoutHistory),
				zap.Strings("stuck_batches", report.StuckBatches),
			)
		}
	}
	return nil
}
