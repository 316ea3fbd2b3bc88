// Package storetest opens migrated in-memory stores for tests.
package storetest

import (
	"context"
	"testing"

	"catalog-reconciler/core/database"
	"catalog-reconciler/core/store"

	"github.com/stretchr/testify/require"
)

// New returns a Store on a fresh migrated in-memory sqlite database.
func New(t testing.TB) *store.Store {
	t.Helper()
	db, err := database.Connect(database.Config{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	st := store.New(db)
	require.NoError(t, st.Migrate(context.Background()))
	return st
}
