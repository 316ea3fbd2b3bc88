package reconcile

import (
	"os"
	"path/filepath"
	"testing"

	"catalog-reconciler/core/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_LoadRulesDefaults(t *testing.T) {
	schema, policy, err := Config{}.LoadRules()
	require.NoError(t, err)
	assert.Contains(t, schema.Fields(), "weight")
	assert.NotNil(t, policy)
}

func TestConfig_LoadRulesFromFiles(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.yaml")
	policyPath := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte("fields:\n  - name: weight\n    type: numeric\n    tolerance: \"0.1\"\n"), 0o644))
	require.NoError(t, os.WriteFile(policyPath, []byte("blocking_flags: [counterfeit]\n"), 0o644))

	schema, policy, err := Config{SchemaPath: schemaPath, PolicyPath: policyPath}.LoadRules()
	require.NoError(t, err)
	assert.Equal(t, []string{"weight"}, schema.Fields())
	assert.True(t, policy.Blocks([]string{"counterfeit"}))
}

func TestConfig_LoadRulesMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fields:\n  - name: weight\n    type: nonsense\n"), 0o644))

	_, _, err := Config{SchemaPath: path}.LoadRules()
	require.Error(t, err)
	assert.True(t, errs.IsConfiguration(err))
}
