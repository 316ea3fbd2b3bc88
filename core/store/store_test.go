package store_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/store"
	"catalog-reconciler/core/store/storetest"
	"catalog-reconciler/core/trust"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestRecords(t *testing.T) {
	ctx := context.Background()
	st := storetest.New(t)

	require.NoError(t, st.PutRecord(ctx, &models.Record{ID: "42", Fields: models.FieldMap{"grade": compare.Enum("VF")}}))

	rec, err := st.GetRecord(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, compare.Enum("VF").Key(), rec.Fields["grade"].Key())

	updated, err := st.SetField(ctx, "42", "mint", compare.Text("Rome"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Version)

	rec, err = st.GetRecord(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Rome", rec.Fields["mint"].Text)
	assert.Equal(t, int64(1), rec.Version)

	// writing an empty value removes the field
	_, err = st.SetField(ctx, "42", "mint", compare.EmptyOf(compare.TypeText))
	require.NoError(t, err)
	rec, err = st.GetRecord(ctx, "42")
	require.NoError(t, err)
	assert.True(t, rec.Field("mint", compare.TypeText).IsEmpty())

	_, err = st.GetRecord(ctx, "missing")
	assert.True(t, errors.Is(err, errs.ErrUnknownRecord))
	_, err = st.SetField(ctx, "missing", "mint", compare.Text("Rome"))
	assert.True(t, errors.Is(err, errs.ErrUnknownRecord))

	existing, err := st.ExistingRecordIDs(ctx, []string{"42", "43"})
	require.NoError(t, err)
	assert.Contains(t, existing, "42")
	assert.NotContains(t, existing, "43")
}

func TestObservations(t *testing.T) {
	ctx := context.Background()
	st := storetest.New(t)
	now := time.Now()

	obs := []*models.Observation{
		{ID: "o2", RecordID: "1", FieldName: "mint", Value: compare.Text("Rome"), SourceName: "a", TrustLevel: trust.Medium, ObservedAt: now},
		{ID: "o1", RecordID: "1", FieldName: "mint", Value: compare.Text("Roma"), SourceName: "b", TrustLevel: trust.Low, ObservedAt: now.Add(-time.Hour)},
		{ID: "o3", RecordID: "2", FieldName: "grade", Value: compare.Enum("VF"), SourceName: "a", TrustLevel: trust.High, ObservedAt: now},
	}
	require.NoError(t, st.AddObservations(ctx, obs...))
	// re-adding is a no-op
	require.NoError(t, st.AddObservations(ctx, obs[0]))

	got, err := st.ObservationsForRecord(ctx, "1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "o1", got[0].ID)
	assert.Equal(t, 1.0, got[0].EffectiveConfidence())

	got, err = st.ObservationsForRecord(ctx, "2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "o3", got[0].ID)
}

func TestCandidates(t *testing.T) {
	ctx := context.Background()
	st := storetest.New(t)

	c := &models.Candidate{
		ID: "c1", Kind: models.KindDiscrepancy, RecordID: "1", FieldName: "grade",
		ObservedValue: compare.Enum("VF35"), ObservedKey: compare.Enum("VF35").Key(),
		SourceName: "dealer", Status: models.StatusPending, AutoAcceptable: true,
	}
	require.NoError(t, st.SaveCandidate(ctx, c))

	found, err := st.FindOpenCandidate(ctx, models.KindDiscrepancy, "1", "grade", c.ObservedKey, "dealer")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "c1", found.ID)

	c.Status = models.StatusRejected
	require.NoError(t, st.SaveCandidate(ctx, c))
	found, err = st.FindOpenCandidate(ctx, models.KindDiscrepancy, "1", "grade", c.ObservedKey, "dealer")
	require.NoError(t, err)
	assert.Nil(t, found)

	yes := true
	list, err := st.ListCandidates(ctx, store.CandidateFilter{AutoAcceptable: &yes, Statuses: []models.Status{models.StatusRejected}})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = st.GetCandidate(ctx, "nope")
	assert.True(t, errors.Is(err, errs.ErrUnknownCandidate))
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	st := storetest.New(t)

	run := &models.AuditRun{ID: "r1", Scope: models.ScopeAll, Status: models.RunQueued, Total: 3}
	created, err := st.CreateRun(ctx, run)
	require.NoError(t, err)
	assert.True(t, created)

	again := &models.AuditRun{ID: "r1", Scope: models.ScopeSingle, Status: models.RunQueued}
	created, err = st.CreateRun(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.ScopeAll, again.Scope)

	ok, err := st.TransitionRun(ctx, "r1", models.RunRunning, models.RunQueued)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.TransitionRun(ctx, "r1", models.RunRunning, models.RunQueued)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.IncrementRunCounters(ctx, "r1", store.RunCounters{Audited: 1, Discrepancies: 2}))
	require.NoError(t, st.IncrementRunCounters(ctx, "r1", store.RunCounters{Audited: 1, Failed: 1, Enrichments: 1}))
	got, err := st.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Audited)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, 2, got.DiscrepanciesFound)
	assert.Equal(t, 1, got.EnrichmentsFound)
	assert.NotNil(t, got.StartedAt)

	_, err = st.GetRun(ctx, "r2")
	assert.True(t, errors.Is(err, errs.ErrUnknownRun))
}

func TestHistorySeq(t *testing.T) {
	ctx := context.Background()
	st := storetest.New(t)

	for i := 0; i < 3; i++ {
		err := st.WithinTx(ctx, func(tx *store.Store) error {
			seq, err := tx.NextSeq(ctx, "1")
			if err != nil {
				return err
			}
			return tx.AppendHistory(ctx, &models.FieldHistoryEntry{
				RecordID: "1", Seq: seq, FieldName: "grade", ChangeType: models.ChangeUpdate,
				BatchID: fmt.Sprintf("b%d", i), ChangedAt: time.Now(),
			})
		})
		require.NoError(t, err)
	}

	entries, err := st.History(ctx, "1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
	}

	later, err := st.LaterChange(ctx, "1", "grade", 2)
	require.NoError(t, err)
	assert.True(t, later)
	later, err = st.LaterChange(ctx, "1", "grade", 3)
	require.NoError(t, err)
	assert.False(t, later)

	// a duplicate seq is rejected by the unique index
	err = st.AppendHistory(ctx, &models.FieldHistoryEntry{RecordID: "1", Seq: 3, FieldName: "grade"})
	assert.Error(t, err)
}

func TestJobs(t *testing.T) {
	ctx := context.Background()
	st := storetest.New(t)

	require.NoError(t, st.CreateJob(ctx, &models.Job{ID: "j1", Type: "audit_run", Status: models.JobQueued}))

	claimed, err := st.ClaimJob(ctx, "j1", "w1")
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = st.ClaimJob(ctx, "j1", "w2")
	require.NoError(t, err)
	assert.False(t, claimed, "duplicate claim ignored")

	cancelled, err := st.CancelJob(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, cancelled)

	require.NoError(t, st.FinishJob(ctx, "j1", models.JobCompleted, ""))
	job, err := st.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, models.JobCancelled, job.Status, "finish does not overwrite a cancellation")
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "w1", job.ClaimedBy)

	_, err = st.GetJob(ctx, "j2")
	assert.True(t, errors.Is(err, errs.ErrUnknownJob))
}

// TestWithinTx_Rollback tests that an error inside the transaction discards its writes.
func TestWithinTx_Rollback(t *testing.T) {
	ctx := context.Background()
	st := storetest.New(t)
	require.NoError(t, st.PutRecord(ctx, &models.Record{ID: "1"}))

	boom := errors.New("boom")
	err := st.WithinTx(ctx, func(tx *store.Store) error {
		if _, err := tx.SetField(ctx, "1", "grade", compare.Enum("VF")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rec, err := st.GetRecord(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, rec.Fields)
	assert.Equal(t, int64(0), rec.Version)
}

// TestGetRecord_DatabaseError tests that driver errors are not reported as unknown records.
func TestGetRecord_DatabaseError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `records` WHERE id = ?")).
		WillReturnError(errors.New("connection reset"))

	_, err = store.New(db).GetRecord(context.Background(), "1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, errs.ErrUnknownRecord))
	assert.Contains(t, err.Error(), "connection reset")
}
