package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/ledger"
	"catalog-reconciler/core/lock"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/store"
	"catalog-reconciler/core/store/storetest"
	"catalog-reconciler/core/trust"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) (*Engine, *store.Store) {
	st := storetest.New(t)
	return New(Deps{Store: st, Logger: zap.NewNop()}), st
}

func observe(id, recordID, field string, v compare.Value, source string, level trust.Level, at time.Time) *models.Observation {
	return &models.Observation{
		ID: id, RecordID: recordID, FieldName: field, Value: v,
		SourceName: source, TrustLevel: level, ObservedAt: at,
	}
}

func TestReconcileRecord_FormatDiffAutoAccepted(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)

	require.NoError(t, st.PutRecord(ctx, &models.Record{ID: "42", Fields: models.FieldMap{"grade": compare.Enum("VF")}}))
	require.NoError(t, st.AddObservations(ctx,
		observe("o1", "42", "grade", compare.Enum("VF35"), "ngc", trust.Authoritative, base)))

	res, err := e.ReconcileRecord(ctx, "42", "run-1")
	require.NoError(t, err)
	require.Len(t, res.Discrepancies, 1)
	assert.Empty(t, res.Enrichments)
	assert.Equal(t, 1, res.Created)

	c := res.Discrepancies[0]
	assert.Equal(t, compare.FormatDiff, c.DifferenceType)
	assert.True(t, c.AutoAcceptable)
	assert.Equal(t, models.StatusPending, c.Status)
	assert.Equal(t, "VF", c.CurrentValue.Text)
	assert.Equal(t, "VF35", c.ObservedValue.Text)
	assert.Equal(t, []string{"o1"}, c.ObservationIDs)
	assert.Equal(t, "run-1", c.RunID)
}

func TestReconcileRecord_AgreeingObservationEmitsNothing(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)

	require.NoError(t, st.PutRecord(ctx, &models.Record{ID: "1", Fields: models.FieldMap{
		"weight": compare.NumberFromFloat(3.41),
		"mint":   compare.Text("Rome"),
	}}))
	require.NoError(t, st.AddObservations(ctx,
		observe("o1", "1", "weight", compare.NumberFromFloat(3.41), "a", trust.High, base),
		observe("o2", "1", "mint", compare.Text("ROME"), "b", trust.Low, base)))

	res, err := e.ReconcileRecord(ctx, "1", "")
	require.NoError(t, err)
	assert.Empty(t, res.Discrepancies)
	assert.Empty(t, res.Enrichments)
}

func TestReconcileRecord_EnrichmentRanksAlternates(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)

	require.NoError(t, st.PutRecord(ctx, &models.Record{ID: "7"}))
	require.NoError(t, st.AddObservations(ctx,
		observe("o1", "7", "mint", compare.Text("Lugdunum"), "dealer", trust.Low, base.Add(time.Hour)),
		observe("o2", "7", "mint", compare.Text("Rome"), "museum", trust.Medium, base),
		observe("o3", "7", "mint", compare.Text("Rome"), "auction", trust.Low, base)))

	res, err := e.ReconcileRecord(ctx, "7", "")
	require.NoError(t, err)
	require.Len(t, res.Enrichments, 1)
	assert.Empty(t, res.Discrepancies)

	c := res.Enrichments[0]
	assert.Equal(t, models.KindEnrichment, c.Kind)
	assert.Equal(t, "Rome", c.ObservedValue.Text)
	assert.Equal(t, trust.Medium, c.TrustLevel)
	assert.Equal(t, compare.Missing, c.DifferenceType)
	assert.False(t, c.AutoAcceptable)
	assert.ElementsMatch(t, []string{"o2", "o3"}, c.ObservationIDs)
	require.Len(t, c.Alternates, 1)
	assert.Equal(t, "Lugdunum", c.Alternates[0].Value.Text)
	assert.Equal(t, trust.Low, c.Alternates[0].TrustLevel)
}

func TestReconcileRecord_Idempotent(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)

	require.NoError(t, st.PutRecord(ctx, &models.Record{ID: "42", Fields: models.FieldMap{"grade": compare.Enum("VF")}}))
	require.NoError(t, st.AddObservations(ctx,
		observe("o1", "42", "grade", compare.Enum("VF35"), "ngc", trust.Authoritative, base)))

	first, err := e.ReconcileRecord(ctx, "42", "run-1")
	require.NoError(t, err)
	second, err := e.ReconcileRecord(ctx, "42", "run-2")
	require.NoError(t, err)

	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.Refreshed)
	require.Len(t, second.Discrepancies, 1)
	assert.Equal(t, first.Discrepancies[0].ID, second.Discrepancies[0].ID)
	assert.Equal(t, "run-2", second.Discrepancies[0].RunID)

	all, err := st.ListCandidates(ctx, store.CandidateFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReconcileRecord_RejectedNotRecreated(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)
	l := ledger.New(st, zap.NewNop(), nil)

	require.NoError(t, st.PutRecord(ctx, &models.Record{ID: "42", Fields: models.FieldMap{"grade": compare.Enum("VF")}}))
	require.NoError(t, st.AddObservations(ctx,
		observe("o1", "42", "grade", compare.Enum("F12"), "dealer", trust.Low, base)))

	res, err := e.ReconcileRecord(ctx, "42", "")
	require.NoError(t, err)
	require.Len(t, res.Discrepancies, 1)
	_, err = l.Resolve(ctx, res.Discrepancies[0].ID, ledger.DecisionReject, "alice", "dealer is wrong")
	require.NoError(t, err)

	res, err = e.ReconcileRecord(ctx, "42", "")
	require.NoError(t, err)
	assert.Empty(t, res.Discrepancies)

	// a newer observation of the same value reopens the question
	require.NoError(t, st.AddObservations(ctx,
		observe("o2", "42", "grade", compare.Enum("F12"), "dealer", trust.Low, base.Add(24*time.Hour))))
	res, err = e.ReconcileRecord(ctx, "42", "")
	require.NoError(t, err)
	require.Len(t, res.Discrepancies, 1)
	assert.Equal(t, 1, res.Created)
}

func TestReconcileRecord_SupersedesAppliedCandidate(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)
	l := ledger.New(st, zap.NewNop(), nil)

	require.NoError(t, st.PutRecord(ctx, &models.Record{ID: "9", Fields: models.FieldMap{"ruler": compare.Text("Trajan")}}))
	require.NoError(t, st.AddObservations(ctx,
		observe("o1", "9", "ruler", compare.Text("Hadrian"), "museum", trust.High, base)))

	res, err := e.ReconcileRecord(ctx, "9", "")
	require.NoError(t, err)
	require.Len(t, res.Discrepancies, 1)
	c := res.Discrepancies[0]

	require.NoError(t, st.WithinTx(ctx, func(tx *store.Store) error {
		if err := l.Ready(ctx, tx, &c, "alice"); err != nil {
			return err
		}
		if _, err := tx.SetField(ctx, "9", "ruler", c.ObservedValue); err != nil {
			return err
		}
		return l.MarkApplied(ctx, tx, &c, "b1")
	}))

	require.NoError(t, st.AddObservations(ctx,
		observe("o2", "9", "ruler", compare.Text("Antoninus Pius"), "museum", trust.High, base.Add(time.Hour))))

	res, err = e.ReconcileRecord(ctx, "9", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Superseded)
	require.Len(t, res.Discrepancies, 1)
	assert.Equal(t, "Antoninus Pius", res.Discrepancies[0].ObservedValue.Text)

	got, err := st.GetCandidate(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuperseded, got.Status)
}

func TestReconcileRecord_RetiresStalePending(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)

	require.NoError(t, st.PutRecord(ctx, &models.Record{ID: "5", Fields: models.FieldMap{"mint": compare.Text("Rome")}}))
	require.NoError(t, st.AddObservations(ctx,
		observe("o1", "5", "mint", compare.Text("Antioch"), "dealer", trust.Medium, base)))

	res, err := e.ReconcileRecord(ctx, "5", "")
	require.NoError(t, err)
	require.Len(t, res.Discrepancies, 1)
	id := res.Discrepancies[0].ID

	// the record was corrected outside the merge flow
	_, err = st.SetField(ctx, "5", "mint", compare.Text("Antioch"))
	require.NoError(t, err)

	res, err = e.ReconcileRecord(ctx, "5", "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retired)
	assert.Empty(t, res.Discrepancies)

	got, err := st.GetCandidate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIgnored, got.Status)
	assert.Equal(t, ledger.ActorSystem, got.ResolvedBy)
}

func TestReconcileRecord_UnknownRecord(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.ReconcileRecord(context.Background(), "nope", "")
	assert.True(t, errors.Is(err, errs.ErrUnknownRecord))
}

func TestReconcileRecord_Unclassified(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)

	require.NoError(t, st.PutRecord(ctx, &models.Record{ID: "3", Fields: models.FieldMap{"weight": compare.NumberFromFloat(3.2)}}))
	require.NoError(t, st.AddObservations(ctx,
		observe("o1", "3", "weight", compare.Text("heavy"), "dealer", trust.High, base),
		observe("o2", "3", "provenance", compare.Text("Hoard of 1907"), "dealer", trust.High, base)))

	res, err := e.ReconcileRecord(ctx, "3", "")
	require.NoError(t, err)
	require.Len(t, res.Unclassified, 2)
	assert.Equal(t, "provenance", res.Unclassified[0].Field)
	assert.Equal(t, "weight", res.Unclassified[1].Field)

	require.Len(t, res.Discrepancies, 1)
	assert.Equal(t, compare.Unclassified, res.Discrepancies[0].DifferenceType)
	assert.False(t, res.Discrepancies[0].AutoAcceptable)

	require.Len(t, res.Enrichments, 1)
	assert.Equal(t, compare.Unclassified, res.Enrichments[0].DifferenceType)
	assert.False(t, res.Enrichments[0].AutoAcceptable)
}

func TestReconcileRecord_ConcurrentCallsDoNotDuplicate(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)

	require.NoError(t, st.PutRecord(ctx, &models.Record{ID: "42", Fields: models.FieldMap{"grade": compare.Enum("VF")}}))
	require.NoError(t, st.AddObservations(ctx,
		observe("o1", "42", "grade", compare.Enum("XF40"), "ngc", trust.Authoritative, base),
		observe("o2", "42", "year", compare.Year(117), "ngc", trust.Authoritative, base)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ReconcileRecord(ctx, "42", "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := st.ListCandidates(ctx, store.CandidateFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReconcileRecord_OverlappingRunsKeepTheirRunID(t *testing.T) {
	ctx := context.Background()
	st := storetest.New(t)
	locker := lock.NewLocal()
	e := New(Deps{Store: st, Locker: locker, Logger: zap.NewNop()})

	require.NoError(t, st.PutRecord(ctx, &models.Record{ID: "42", Fields: models.FieldMap{"grade": compare.Enum("VF")}}))
	require.NoError(t, st.AddObservations(ctx,
		observe("o1", "42", "grade", compare.Enum("VF35"), "ngc", trust.Authoritative, base)))

	release, err := locker.Obtain(ctx, lock.RecordKey("42"))
	require.NoError(t, err)

	results := make(map[string]*RecordResult)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, runID := range []string{"run-a", "run-b"} {
		runID := runID
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.ReconcileRecord(ctx, "42", runID)
			assert.NoError(t, err)
			mu.Lock()
			results[runID] = res
			mu.Unlock()
		}()
	}
	time.Sleep(50 * time.Millisecond)
	release()
	wg.Wait()

	for _, runID := range []string{"run-a", "run-b"} {
		res := results[runID]
		require.NotNil(t, res, runID)
		require.Len(t, res.Discrepancies, 1, runID)
		assert.Equal(t, runID, res.Discrepancies[0].RunID)
	}
	assert.Equal(t, 1, results["run-a"].Created+results["run-b"].Created)

	all, err := st.ListCandidates(ctx, store.CandidateFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReconcileRecord_UntrustedFormatDiffNeedsReview(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t)

	require.NoError(t, st.PutRecord(ctx, &models.Record{ID: "42", Fields: models.FieldMap{"grade": compare.Enum("VF")}}))
	require.NoError(t, st.AddObservations(ctx,
		observe("o1", "42", "grade", compare.Enum("VF35"), "forum", trust.Untrusted, base)))

	res, err := e.ReconcileRecord(ctx, "42", "run-1")
	require.NoError(t, err)
	require.Len(t, res.Discrepancies, 1)

	c := res.Discrepancies[0]
	assert.Equal(t, compare.FormatDiff, c.DifferenceType)
	assert.Equal(t, trust.Untrusted, c.TrustLevel)
	assert.False(t, c.AutoAcceptable)
}
