package checks

import (
	"testing"

	"catalog-reconciler/core/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSchema(t *testing.T) {
	st := storetest.New(t)

	report, err := CheckSchema(st.DB())
	require.NoError(t, err)
	assert.True(t, report.Matched)
	assert.Equal(t, "sqlite", report.Dialect)
	assert.NotEmpty(t, report.Tables)

	require.NoError(t, st.DB().Migrator().DropTable("field_history"))
	report, err = CheckSchema(st.DB())
	require.NoError(t, err)
	assert.False(t, report.Matched)
}

func TestCheckSchema_NilDB(t *testing.T) {
	_, err := CheckSchema(nil)
	assert.Error(t, err)
}
