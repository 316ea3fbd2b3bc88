package reconcile

import (
	"fmt"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/trust"
)

// Config holds configuration for reconciliation, audits and merges.
type Config struct {
	// SchemaPath is a YAML field schema; empty uses the built-in schema.
	SchemaPath string `mapstructure:"schema_path" default:""`
	// PolicyPath is a YAML trust policy; empty uses the built-in policy.
	PolicyPath string `mapstructure:"policy_path" default:""`
	// FieldWorkers bounds fields compared concurrently within one record.
	FieldWorkers int `mapstructure:"field_workers" default:"4"`
	// AuditWorkers bounds records reconciled concurrently by an audit run.
	AuditWorkers int `mapstructure:"audit_workers" default:"8"`
	// MergeWorkers bounds records committed concurrently by a merge.
	MergeWorkers int `mapstructure:"merge_workers" default:"4"`
}

// LoadRules returns the field schema and trust policy named by the config,
// falling back to the built-in ones.
func (c Config) LoadRules() (*compare.Schema, *trust.Policy, error) {
	schema := compare.DefaultSchema()
	if c.SchemaPath != "" {
		s, err := compare.LoadSchema(c.SchemaPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load schema: %w", err)
		}
		schema = s
	}
	policy := trust.DefaultPolicy()
	if c.PolicyPath != "" {
		p, err := trust.Load(c.PolicyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load policy: %w", err)
		}
		policy = p
	}
	return schema, policy, nil
}
