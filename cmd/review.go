package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"catalog-reconciler/core/models"
	"catalog-reconciler/feature/reconciliation"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	ingestReconcile bool
	listStatus      string
	listRecord      string
	listField       string
	listRun         string
	resolveDecision string
	resolveActor    string
	resolveNotes    string
)

// ingestCmd loads a YAML or JSON file of observations.
var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest observations from a YAML or JSON file",
	Long: `Ingest observations from a YAML or JSON file.

The file holds an "observations" list; each entry names the record, the field,
the value, the source and its trust level. Every referenced record must exist.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var req reconciliation.IngestRequest
		if err := readDocument(args[0], &req); err != nil {
			return err
		}
		req.Reconcile = req.Reconcile || ingestReconcile

		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		result, err := rt.service().IngestObservations(ctx, req)
		if err != nil {
			return err
		}
		rt.logger.Info("Observations ingested",
			zap.Int("accepted", result.Accepted),
			zap.Int("reconciled", len(result.Reconciled)),
			zap.Int("failures", len(result.Failures)),
		)
		return printJSON(result)
	},
}

// recordCmd groups record commands.
var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Import and inspect catalog records",
}

var recordImportCmd = &cobra.Command{
	Use:   "import <id> <file>",
	Short: "Insert or replace a record from a YAML or JSON file of fields",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var in reconciliation.RecordInput
		if err := readDocument(args[1], &in); err != nil {
			return err
		}

		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		rec, err := rt.service().PutRecord(ctx, args[0], in)
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var recordGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		rec, err := rt.store.GetRecord(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var recordHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the field history of a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		entries, err := rt.service().History(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

// candidatesCmd groups review commands.
var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List and resolve discrepancies and enrichments",
}

var candidatesListCmd = &cobra.Command{
	Use:       "list <discrepancy|enrichment>",
	Short:     "List candidates of one kind",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(models.KindDiscrepancy), string(models.KindEnrichment)},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		out, err := rt.service().ListCandidates(ctx, models.CandidateKind(args[0]), reconciliation.CandidateQuery{
			Status:   listStatus,
			RecordID: listRecord,
			Field:    listField,
			RunID:    listRun,
			Limit:    pageLimit,
			Offset:   pageOffset,
		})
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

var candidatesResolveCmd = &cobra.Command{
	Use:   "resolve <candidate-id>",
	Short: "Record a decision on a candidate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		c, err := rt.service().Resolve(ctx, args[0], reconciliation.ResolveRequest{
			Decision: resolveDecision,
			Actor:    resolveActor,
			Notes:    resolveNotes,
		})
		if err != nil {
			return err
		}
		rt.logger.Info("Candidate resolved", zap.String("candidate_id", c.ID), zap.String("status", string(c.Status)))
		return printJSON(c)
	},
}

var candidatesEventsCmd = &cobra.Command{
	Use:   "events <candidate-id>",
	Short: "Show the resolution trail of a candidate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := cliRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		events, err := rt.service().Events(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(events)
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestReconcile, "reconcile", false, "Reconcile the affected records after ingestion")

	candidatesListCmd.Flags().StringVar(&listStatus, "status", "open", "Status filter, or open for every undecided state")
	candidatesListCmd.Flags().StringVar(&listRecord, "record", "", "Record id filter")
	candidatesListCmd.Flags().StringVar(&listField, "field", "", "Field name filter")
	candidatesListCmd.Flags().StringVar(&listRun, "run", "", "Audit run id filter")
	candidatesListCmd.Flags().IntVar(&pageLimit, "limit", 100, "Maximum rows to return")
	candidatesListCmd.Flags().IntVar(&pageOffset, "offset", 0, "Rows to skip")

	candidatesResolveCmd.Flags().StringVar(&resolveDecision, "decision", "", "accept, reject, ignore, provisional or approve")
	candidatesResolveCmd.Flags().StringVar(&resolveActor, "actor", "", "Reviewer name")
	candidatesResolveCmd.Flags().StringVar(&resolveNotes, "notes", "", "Free-form notes")
	_ = candidatesResolveCmd.MarkFlagRequired("decision")

	recordCmd.AddCommand(recordImportCmd, recordGetCmd, recordHistoryCmd)
	candidatesCmd.AddCommand(candidatesListCmd, candidatesResolveCmd, candidatesEventsCmd)
	RootCmd.AddCommand(ingestCmd, recordCmd, candidatesCmd)
}

// readDocument decodes a YAML or JSON file into v through its json tags.
func readDocument(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	raw, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
