package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/jobs"
	"catalog-reconciler/core/lock"
	"catalog-reconciler/core/merge"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/reconcile"
	"catalog-reconciler/core/storage"
	"catalog-reconciler/core/storage/mocks"
	"catalog-reconciler/core/store"
	"catalog-reconciler/core/store/storetest"
	"catalog-reconciler/core/trust"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	st     *store.Store
	locker *lock.Local
	jobs   *jobs.Orchestrator
	coord  *Coordinator
}

func newFixture(t *testing.T, archive *storage.Archive) *fixture {
	st := storetest.New(t)
	locker := lock.NewLocal()
	engine := reconcile.New(reconcile.Deps{Store: st, Locker: locker})
	merger := merge.New(merge.Deps{Store: st, Locker: locker})
	o := jobs.New(st, jobs.Config{Workers: 1, PollMillis: 50}, zap.NewNop(), nil)
	coord := New(Deps{
		Store:   st,
		Engine:  engine,
		Index:   reconcile.NewScopeIndex(st),
		Merger:  merger,
		Jobs:    o,
		Archive: archive,
		Workers: 4,
	})
	return &fixture{st: st, locker: locker, jobs: o, coord: coord}
}

func (f *fixture) start(t *testing.T) {
	require.NoError(t, f.jobs.Start(context.Background()))
	t.Cleanup(f.jobs.Stop)
}

func (f *fixture) waitRun(t *testing.T, runID string) *models.AuditRun {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := f.coord.RunStatus(context.Background(), runID)
		require.NoError(t, err)
		if run.Status.Terminal() {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", runID)
	return nil
}

func (f *fixture) seed(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, f.st.PutRecord(ctx, &models.Record{ID: "1", Fields: models.FieldMap{"grade": compare.Enum("VF")}}))
	require.NoError(t, f.st.PutRecord(ctx, &models.Record{ID: "2"}))
	require.NoError(t, f.st.PutRecord(ctx, &models.Record{ID: "3", Fields: models.FieldMap{"mint": compare.Text("Rome")}}))
	require.NoError(t, f.st.AddObservations(ctx,
		&models.Observation{ID: "o1", RecordID: "1", FieldName: "grade", Value: compare.Enum("VF35"),
			SourceName: "ngc", TrustLevel: trust.Authoritative, ObservedAt: base},
		&models.Observation{ID: "o2", RecordID: "2", FieldName: "mint", Value: compare.Text("Rome"),
			SourceName: "museum", TrustLevel: trust.Medium, ObservedAt: base},
	))
}

func TestRun_AllScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seed(t)
	f.start(t)

	runID, err := f.coord.StartRun(ctx, RunRequest{Scope: models.ScopeAll})
	require.NoError(t, err)

	run := f.waitRun(t, runID)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 3, run.Audited)
	assert.Equal(t, 0, run.Failed)
	assert.Equal(t, 1, run.DiscrepanciesFound)
	assert.Equal(t, 1, run.EnrichmentsFound)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.CompletedAt)

	cands, err := f.st.ListCandidates(ctx, store.CandidateFilter{RunID: runID})
	require.NoError(t, err)
	assert.Len(t, cands, 2)
}

func TestRun_UnknownRecordIsCountedNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seed(t)
	f.start(t)

	runID, err := f.coord.StartRun(ctx, RunRequest{Scope: models.ScopeIDs, RecordIDs: []string{"1", "ghost"}})
	require.NoError(t, err)

	run := f.waitRun(t, runID)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 1, run.Audited)
	assert.Equal(t, 1, run.Failed)

	failures, err := f.coord.Failures(ctx, runID, store.Page{})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "ghost", failures[0].RecordID)
	assert.Contains(t, failures[0].Reason, "unknown record")
}

func TestStartRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	req := RunRequest{Scope: models.ScopeSingle, RecordIDs: []string{"1"}, RunID: "run-1"}
	first, err := f.coord.StartRun(ctx, req)
	require.NoError(t, err)
	second, err := f.coord.StartRun(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "run-1", first)
	assert.Equal(t, first, second)

	queued, err := f.st.QueuedJobIDs(ctx)
	require.NoError(t, err)
	assert.Len(t, queued, 1)

	_, err = f.coord.StartRun(ctx, RunRequest{Scope: models.ScopeSingle})
	assert.Error(t, err)
}

func TestRun_AutoApply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seed(t)
	f.start(t)

	runID, err := f.coord.StartRun(ctx, RunRequest{Scope: models.ScopeAll, AutoApply: true})
	require.NoError(t, err)

	run := f.waitRun(t, runID)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.NotEmpty(t, run.BatchID)

	rec, err := f.st.GetRecord(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "VF35", rec.Fields["grade"].Text)

	// the medium-trust enrichment is not auto-acceptable
	rec, err = f.st.GetRecord(ctx, "2")
	require.NoError(t, err)
	assert.True(t, rec.Field("mint", compare.TypeText).IsEmpty())
}

func TestCancel_QueuedRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seed(t)

	runID, err := f.coord.StartRun(ctx, RunRequest{Scope: models.ScopeAll})
	require.NoError(t, err)

	run, err := f.coord.Cancel(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCancelled, run.Status)

	require.NoError(t, f.coord.Execute(ctx, runID))
	run, err = f.coord.RunStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCancelled, run.Status)
	assert.Equal(t, 0, run.Audited)
}

func TestExecute_CancelledStopsScheduling(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.seed(t)

	runID, err := f.coord.StartRun(ctx, RunRequest{Scope: models.ScopeAll})
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, f.coord.Execute(cancelled, runID))

	run, err := f.coord.RunStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCancelled, run.Status)
	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 0, run.Audited)
}

func TestRun_ArchivesReport(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	client.On("PutObject", mock.Anything, "archive", "runs/run-7.json", mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, nil).Once()
	f := newFixture(t, storage.NewArchive(client, "archive", nil))
	f.seed(t)

	_, err := f.coord.StartRun(ctx, RunRequest{Scope: models.ScopeSingle, RecordIDs: []string{"1"}, RunID: "run-7"})
	require.NoError(t, err)
	require.NoError(t, f.coord.Execute(ctx, "run-7"))

	client.AssertExpectations(t)
}

func TestCancel_FromAnotherCoordinatorStopsRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.coord.workers = 1
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		require.NoError(t, f.st.PutRecord(ctx, &models.Record{ID: id, Fields: models.FieldMap{"grade": compare.Enum("VF")}}))
		require.NoError(t, f.st.AddObservations(ctx, &models.Observation{
			ID: "o-" + id, RecordID: id, FieldName: "grade", Value: compare.Enum("VF35"),
			SourceName: "ngc", TrustLevel: trust.Authoritative, ObservedAt: base,
		}))
	}
	// a second process sharing the database, without a job runner
	cli := New(Deps{Store: f.st})

	runID, err := f.coord.StartRun(ctx, RunRequest{Scope: models.ScopeIDs, RecordIDs: ids, AutoApply: true})
	require.NoError(t, err)

	release, err := f.locker.Obtain(ctx, lock.RecordKey("a"))
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- f.coord.Execute(ctx, runID) }()

	require.Eventually(t, func() bool {
		run, err := cli.RunStatus(ctx, runID)
		return err == nil && run.Status == models.RunRunning
	}, 5*time.Second, 10*time.Millisecond)

	run, err := cli.Cancel(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCancelled, run.Status)
	release()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}

	run, err = f.coord.RunStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCancelled, run.Status)
	assert.LessOrEqual(t, run.Audited, 1)
	assert.Empty(t, run.BatchID)

	for _, id := range ids {
		rec, err := f.st.GetRecord(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "VF", rec.Fields["grade"].Text, id)
	}
	cands, err := f.st.ListCandidates(ctx, store.CandidateFilter{RecordIDs: []string{"b", "c", "d"}})
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestRun_SeesObservationsWrittenAfterPreviousRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	require.NoError(t, f.st.PutRecord(ctx, &models.Record{ID: "1", Fields: models.FieldMap{"grade": compare.Enum("VF")}}))

	first, err := f.coord.StartRun(ctx, RunRequest{Scope: models.ScopeAll})
	require.NoError(t, err)
	require.NoError(t, f.coord.Execute(ctx, first))

	// ingested by another process
	require.NoError(t, f.st.AddObservations(ctx, &models.Observation{
		ID: "o1", RecordID: "1", FieldName: "grade", Value: compare.Enum("VF35"),
		SourceName: "ngc", TrustLevel: trust.Authoritative, ObservedAt: base,
	}))

	second, err := f.coord.StartRun(ctx, RunRequest{Scope: models.ScopeAll})
	require.NoError(t, err)
	require.NoError(t, f.coord.Execute(ctx, second))

	run, err := f.coord.RunStatus(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, run.Status)
	assert.Equal(t, 1, run.Audited)
	assert.Equal(t, 1, run.DiscrepanciesFound)

	cands, err := f.st.ListCandidates(ctx, store.CandidateFilter{RunID: second})
	require.NoError(t, err)
	assert.Len(t, cands, 1)
}

func TestFinish_ArchivesEveryFailure(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)
	var archived Report
	client.On("PutObject", mock.Anything, "archive", "runs/run-big.json", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			require.NoError(t, json.NewDecoder(args.Get(3).(io.Reader)).Decode(&archived))
		}).
		Return(minio.UploadInfo{}, nil).Once()
	f := newFixture(t, storage.NewArchive(client, "archive", nil))

	_, err := f.coord.StartRun(ctx, RunRequest{Scope: models.ScopeSingle, RecordIDs: []string{"ghost"}, RunID: "run-big"})
	require.NoError(t, err)
	for i := 0; i < 520; i++ {
		require.NoError(t, f.st.AddRunFailure(ctx, &models.AuditRunFailure{RunID: "run-big", RecordID: fmt.Sprintf("r%d", i), Reason: "boom"}))
	}
	require.NoError(t, f.coord.Execute(ctx, "run-big"))

	client.AssertExpectations(t)
	assert.Len(t, archived.Failures, 521)
}
