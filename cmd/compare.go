package cmd

import (
	"fmt"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/config"
	"catalog-reconciler/core/logger"
	"catalog-reconciler/core/trust"
	"catalog-reconciler/feature/reconciliation"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var compareTrust string

// compareCmd runs the field comparator on two values without touching the database.
var compareCmd = &cobra.Command{
	Use:   "compare <field> <current> <observed>",
	Short: "Classify the difference between two values of a field",
	Long: `Classify the difference between two values using the configured field
schema, and report whether the trust policy would auto-accept it.

Examples:
  compare grade VF VF35
  compare weight 3.11 3.12 --trust high
  compare year 1870 1870-1875`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(".")
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		l, err := logger.New(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		schema, policy, err := cfg.Reconcile.LoadRules()
		if err != nil {
			return err
		}
		field := args[0]
		current, err := reconciliation.TypeValue(schema, field, "", args[1])
		if err != nil {
			return err
		}
		observed, err := reconciliation.TypeValue(schema, field, "", args[2])
		if err != nil {
			return err
		}

		result, err := schema.Compare(field, current, observed)
		if err != nil {
			return err
		}
		level, err := trust.ParseLevel(compareTrust)
		if err != nil {
			return err
		}

		l.Info("Comparison",
			zap.String("field", field),
			zap.String("current", current.String()),
			zap.String("observed", observed.String()),
			zap.String("difference", string(result.Difference)),
			zap.Float64("similarity", result.Similarity),
		)
		return printJSON(struct {
			compare.Result
			TrustLevel     trust.Level `json:"trust_level"`
			AutoAcceptable bool        `json:"auto_acceptable"`
		}{result, level, policy.IsAutoAcceptable(level, result.Difference)})
	},
}

func init() {
	compareCmd.Flags().StringVar(&compareTrust, "trust", string(trust.Medium), "Trust level of the observing source")
	RootCmd.AddCommand(compareCmd)
}
