package cmd

import (
	"fmt"
	"strings"

	"catalog-reconciler/core/audit"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/storage"
	"catalog-reconciler/core/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	auditScope     string
	auditIDs       []string
	auditAutoApply bool
	auditWait      bool
	auditRunID     string
	pageLimit      int
	pageOffset     int
)

// auditCmd is the parent command for audit runs.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Start and inspect audit runs",
	Long: `Audit runs reconcile a scope of records against their observations and
record discrepancies and enrichments for review.`,
}

var auditRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Queue an audit run",
	Long: `Queue an audit run over one record, a list of records or the whole catalog.

Examples:
  # Audit every record with observations
  audit run --scope all

  # Audit two records and wait for the result
  audit run --scope ids --ids 42,43 --wait

  # Audit and commit auto-acceptable candidates
  audit run --scope single --ids 42 --auto-apply --wait`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		run, err := rt.service().StartAudit(ctx, audit.RunRequest{
			Scope:     models.RunScope(auditScope),
			RecordIDs: auditIDs,
			AutoApply: auditAutoApply,
			RunID:     auditRunID,
		})
		if err != nil {
			return fmt.Errorf("failed to start audit: %w", err)
		}
		rt.logger.Info("Audit run queued", zap.String("run_id", run.ID), zap.String("scope", string(run.Scope)))

		if auditWait && !run.Status.Terminal() {
			if err := rt.waitJob(ctx, run.JobID); err != nil {
				return err
			}
			if run, err = rt.audits.RunStatus(ctx, run.ID); err != nil {
				return err
			}
			printRunReport(rt.logger, run)
		}
		return printJSON(run)
	},
}

var auditStatusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show an audit run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		run, err := rt.audits.RunStatus(ctx, args[0])
		if err != nil {
			return err
		}
		printRunReport(rt.logger, run)
		return printJSON(run)
	},
}

var auditFailuresCmd = &cobra.Command{
	Use:   "failures <run-id>",
	Short: "List the records an audit run could not reconcile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		failures, err := rt.audits.Failures(ctx, args[0], store.Page{Limit: pageLimit, Offset: pageOffset})
		if err != nil {
			return err
		}
		return printJSON(failures)
	},
}

var auditCancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Cancel a queued or running audit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		run, err := rt.audits.Cancel(ctx, args[0])
		if err != nil {
			return err
		}
		rt.logger.Info("Audit run cancelled", zap.String("run_id", run.ID), zap.String("status", string(run.Status)))
		return nil
	},
}

var auditReportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Print the archived report of a finished run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		if !rt.archive.Enabled() {
			return fmt.Errorf("archive storage is not enabled")
		}
		var report audit.Report
		if err := rt.archive.GetJSON(ctx, storage.RunKey(args[0]), &report); err != nil {
			return err
		}
		return printJSON(report)
	},
}

func init() {
	auditRunCmd.Flags().StringVar(&auditScope, "scope", string(models.ScopeAll), "Scope: "+strings.Join([]string{
		string(models.ScopeSingle), string(models.ScopeIDs), string(models.ScopeAll),
	}, ", "))
	auditRunCmd.Flags().StringSliceVar(&auditIDs, "ids", nil, "Record ids for the single and ids scopes")
	auditRunCmd.Flags().BoolVar(&auditAutoApply, "auto-apply", false, "Commit auto-acceptable candidates when the run completes")
	auditRunCmd.Flags().BoolVar(&auditWait, "wait", false, "Run the audit in this process and wait for it")
	auditRunCmd.Flags().StringVar(&auditRunID, "run-id", "", "Idempotency key for the run")

	auditFailuresCmd.Flags().IntVar(&pageLimit, "limit", 100, "Maximum rows to return")
	auditFailuresCmd.Flags().IntVar(&pageOffset, "offset", 0, "Rows to skip")

	auditCmd.AddCommand(auditRunCmd, auditStatusCmd, auditFailuresCmd, auditCancelCmd, auditReportCmd)
	RootCmd.AddCommand(auditCmd)
}

// printRunReport logs the counters of a run.
func printRunReport(l *zap.Logger, run *models.AuditRun) {
	l.Info("Audit run report",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("total", run.Total),
		zap.Int("audited", run.Audited),
		zap.Int("failed", run.Failed),
		zap.Int("discrepancies", run.DiscrepanciesFound),
		zap.Int("enrichments", run.EnrichmentsFound),
		zap.String("batch_id", run.BatchID),
	)
	if run.Error != "" {
		l.Warn("Audit run error", zap.String("error", run.Error))
	}
}
