package checks

import (
	"context"
	"testing"
	"time"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLedger(t *testing.T) {
	ctx := context.Background()
	st := storetest.New(t)

	require.NoError(t, st.PutRecord(ctx, &models.Record{ID: "42", Fields: models.FieldMap{"mint": compare.Text("Paris")}}))

	candidates := []*models.Candidate{
		{ID: "c-ok", Kind: models.KindDiscrepancy, RecordID: "42", FieldName: "mint", Status: models.StatusApplied},
		{ID: "c-nohist", Kind: models.KindDiscrepancy, RecordID: "42", FieldName: "mint", Status: models.StatusApplied},
		{ID: "c-orphan", Kind: models.KindEnrichment, RecordID: "missing", FieldName: "mint", Status: models.StatusPending},
	}
	for _, c := range candidates {
		require.NoError(t, st.SaveCandidate(ctx, c))
	}
	require.NoError(t, st.AppendHistory(ctx, &models.FieldHistoryEntry{
		RecordID: "42", Seq: 1, FieldName: "mint", ChangeType: models.ChangeUpdate, CandidateID: "c-ok", BatchID: "b-done",
	}))

	_, err := st.CreateBatch(ctx, &models.MergeBatch{ID: "b-stuck", Status: models.BatchPending, CreatedAt: time.Now().Add(-2 * time.Hour)})
	require.NoError(t, err)
	_, err = st.CreateBatch(ctx, &models.MergeBatch{ID: "b-fresh", Status: models.BatchPending})
	require.NoError(t, err)

	report, err := CheckLedger(ctx, st.DB(), time.Hour)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.Equal(t, []string{"c-orphan"}, report.OrphanCandidates)
	assert.Equal(t, []string{"c-nohist"}, report.AppliedWithoutHistory)
	assert.Equal(t, []string{"b-stuck"}, report.StuckBatches)
}

func TestCheckLedger_Clean(t *testing.T) {
	report, err := CheckLedger(context.Background(), storetest.New(t).DB(), time.Hour)
	require.NoError(t, err)
	assert.True(t, report.OK())
}
