package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/merge"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/reconcile"
	"catalog-reconciler/feature/reconciliation"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	mergeCandidates []string
	mergeScope      string
	mergeRecords    []string
	mergeBatchID    string
	mergeActor      string
	mergeAsync      bool
	dryRunMerge     bool
	yesConfirm      bool
)

// mergeCmd is the parent command for merge batches.
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Preview, commit and roll back merge batches",
	Long: `Merge batches write accepted discrepancies and approved enrichments to
their records. Every batch is recorded in the field history and can be rolled
back while no later change touched the same fields.`,
}

var mergePreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show the changes a commit would make",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		plan, err := rt.service().Preview(ctx, mergeSelection())
		if err != nil {
			return err
		}
		printMergePlan(rt.logger, plan)
		return printJSON(plan)
	},
}

var mergeCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit a selection of candidates as one batch",
	Long: `Commit a selection of candidates as one batch.

Examples:
  # Preview, confirm interactively, then commit two candidates
  merge commit --candidates 6f1c...,9a2e...

  # Commit every auto-acceptable candidate of the catalog without prompting
  merge commit --scope all --yes

  # Queue the commit as a job for a running server
  merge commit --scope ids --records 42,43 --async --yes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()
		svc := rt.service()
		sel := mergeSelection()

		plan, err := svc.Preview(ctx, sel)
		if err != nil {
			return err
		}
		printMergePlan(rt.logger, plan)

		if dryRunMerge {
			rt.logger.Info("Dry-run mode: No changes were made.")
			return nil
		}
		if len(plan.Changes) == 0 {
			rt.logger.Info("No changes required for this selection.")
			return nil
		}
		if !confirmDestructiveAction() {
			rt.logger.Warn("Operation cancelled by user. No changes were made.")
			return nil
		}

		resp, err := svc.Commit(ctx, reconciliation.CommitRequest{
			Selection: sel,
			BatchID:   mergeBatchID,
			Actor:     mergeActor,
			Async:     mergeAsync,
		})
		if errors.Is(err, errs.ErrPartialBatchFailure) {
			rt.logger.Warn("Batch partially failed", zap.Error(err))
			return printJSON(resp)
		}
		if err != nil {
			return err
		}
		if resp.Job != nil {
			rt.logger.Info("Commit queued", zap.String("batch_id", resp.BatchID), zap.String("job_id", resp.Job.ID))
		} else {
			rt.logger.Info("Batch committed",
				zap.String("batch_id", resp.BatchID),
				zap.Int("fills", resp.Result.Batch.Fills),
				zap.Int("updates", resp.Result.Batch.Updates),
			)
		}
		return printJSON(resp)
	},
}

var mergeBatchCmd = &cobra.Command{
	Use:   "batch <batch-id>",
	Short: "Show a committed batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		result, err := rt.merger.Batch(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var mergeRollbackCmd = &cobra.Command{
	Use:   "rollback <batch-id>",
	Short: "Restore the values a batch replaced",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		batch, err := rt.merger.Batch(ctx, args[0])
		if err != nil {
			return err
		}
		rt.logger.Info("Rolling back batch",
			zap.String("batch_id", batch.Batch.ID),
			zap.String("status", string(batch.Batch.Status)),
			zap.Int("changes", len(batch.Changes)),
		)
		if !confirmDestructiveAction() {
			rt.logger.Warn("Operation cancelled by user. No changes were made.")
			return nil
		}

		result, err := rt.merger.Rollback(ctx, args[0])
		if err != nil {
			return err
		}
		rt.logger.Info("Batch rolled back", zap.Int("restored", len(result.Restored)))
		return printJSON(result)
	},
}

func init() {
	for _, c := range []*cobra.Command{mergePreviewCmd, mergeCommitCmd} {
		c.Flags().StringSliceVar(&mergeCandidates, "candidates", nil, "Candidate ids to merge")
		c.Flags().StringVar(&mergeScope, "scope", "", "Select auto-acceptable candidates by scope: single, ids, all")
		c.Flags().StringSliceVar(&mergeRecords, "records", nil, "Record ids for the single and ids scopes")
	}
	mergeCommitCmd.Flags().StringVar(&mergeBatchID, "batch-id", "", "Idempotency key for the batch")
	mergeCommitCmd.Flags().StringVar(&mergeActor, "actor", "", "Actor recorded on the batch decisions")
	mergeCommitCmd.Flags().BoolVar(&mergeAsync, "async", false, "Queue the commit as a job")
	mergeCommitCmd.Flags().BoolVar(&dryRunMerge, "dry-run", false, "Only preview (no mutations even with --yes)")

	for _, c := range []*cobra.Command{mergeCommitCmd, mergeRollbackCmd} {
		c.Flags().BoolVar(&yesConfirm, "yes", false, "Auto-confirm destructive actions (non-interactive)")
	}

	mergeCmd.AddCommand(mergePreviewCmd, mergeCommitCmd, mergeBatchCmd, mergeRollbackCmd)
	RootCmd.AddCommand(mergeCmd)
}

func mergeSelection() merge.Selection {
	if mergeScope == "" {
		return merge.Selection{CandidateIDs: mergeCandidates}
	}
	return merge.Selection{
		CandidateIDs: mergeCandidates,
		Scope:        &reconcile.Scope{Kind: models.RunScope(mergeScope), IDs: mergeRecords},
	}
}

// printMergePlan logs a plan summary and a sample of its changes.
func printMergePlan(l *zap.Logger, plan *merge.Plan) {
	l.Info("Merge plan",
		zap.Int("fills", plan.Fills),
		zap.Int("updates", plan.Updates),
		zap.Int("skipped", len(plan.Skipped)),
	)

	maxShow := min(5, len(plan.Changes))
	for _, c := range plan.Changes[:maxShow] {
		l.Info("Sample change",
			zap.String("record_id", c.RecordID),
			zap.String("field", c.Field),
			zap.String("from", c.OldValue.String()),
			zap.String("to", c.NewValue.String()),
			zap.String("source", c.Source),
		)
	}
	if len(plan.Changes) > maxShow {
		l.Info("Additional changes not shown", zap.Int("count", len(plan.Changes)-maxShow))
	}
}

// confirmDestructiveAction prompts the user for confirmation or uses --yes flag.
func confirmDestructiveAction() bool {
	if yesConfirm {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Print("\n⚠️  Type 'yes' to confirm: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(response) == "yes"
}
