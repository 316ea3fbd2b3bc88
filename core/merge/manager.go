package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/ledger"
	"catalog-reconciler/core/lock"
	"catalog-reconciler/core/metrics"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/storage"
	"catalog-reconciler/core/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("catalog-reconciler/core/merge")

// Deps are the collaborators of a Manager.
type Deps struct {
	Store     *store.Store
	Schema    *compare.Schema
	Ledger    *ledger.Ledger
	Locker    lock.Locker
	Validator *compare.ValueValidator
	Archive   *storage.Archive
	Logger    *zap.Logger
	Metrics   *metrics.Metrics

	// Workers bounds records committed concurrently.
	Workers int
}

// Manager applies candidates to records in batches.
type Manager struct {
	store     *store.Store
	schema    *compare.Schema
	ledger    *ledger.Ledger
	locker    lock.Locker
	validator *compare.ValueValidator
	archive   *storage.Archive
	logger    *zap.Logger
	metrics   *metrics.Metrics
	workers   int
}

// New creates a Manager. Nil optional dependencies get defaults.
func New(d Deps) *Manager {
	m := &Manager{
		store:     d.Store,
		schema:    d.Schema,
		ledger:    d.Ledger,
		locker:    d.Locker,
		validator: d.Validator,
		archive:   d.Archive,
		logger:    d.Logger,
		metrics:   d.Metrics,
		workers:   d.Workers,
	}
	if m.schema == nil {
		m.schema = compare.DefaultSchema()
	}
	if m.locker == nil {
		m.locker = lock.NewLocal()
	}
	if m.validator == nil {
		m.validator = compare.NewValueValidator(nil)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.ledger == nil {
		m.ledger = ledger.New(d.Store, m.logger, d.Metrics)
	}
	if m.workers <= 0 {
		m.workers = 4
	}
	return m
}

// Preview computes the changes a commit of sel would make, without writing.
func (m *Manager) Preview(ctx context.Context, sel Selection) (*Plan, error) {
	cands, skipped, err := m.selectCandidates(ctx, sel)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Changes: []Change{}, Skipped: skipped}
	for _, group := range groupByRecord(cands) {
		rec, err := m.store.GetRecord(ctx, group[0].RecordID)
		if errors.Is(err, errs.ErrUnknownRecord) {
			for _, c := range group {
				plan.Skipped = append(plan.Skipped, skip(c, "unknown record"))
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		changes, sk := m.planRecord(rec, group)
		for _, c := range changes {
			plan.add(c)
		}
		plan.Skipped = append(plan.Skipped, sk...)
	}
	return plan, nil
}

// Commit applies sel as one batch. Re-running a finished batch id returns its
// stored result. Per-record failures do not stop other records; they make the
// batch partial, which BatchResult.Err reports.
func (m *Manager) Commit(ctx context.Context, sel Selection, opts CommitOptions) (result *BatchResult, err error) {
	batchID := opts.BatchID
	if batchID == "" {
		batchID = uuid.New().String()
	}
	actor := opts.Actor
	if actor == "" {
		actor = ledger.ActorPolicy
	}

	ctx, span := tracer.Start(ctx, "merge.commit", trace.WithAttributes(attribute.String("batch.id", batchID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	// one attempt per batch id at a time; a retry waits for the attempt in flight
	release, err := m.locker.Obtain(ctx, lock.BatchKey(batchID))
	if err != nil {
		return nil, fmt.Errorf("lock batch: %w", err)
	}
	defer release()

	if existing, err := m.store.GetBatch(ctx, batchID); err == nil && existing.Status != models.BatchPending {
		return m.storedResult(ctx, existing)
	} else if err != nil && !errors.Is(err, errs.ErrUnknownBatch) {
		return nil, err
	}

	cands, skipped, err := m.selectCandidates(ctx, sel)
	if err != nil {
		return nil, err
	}

	batch := &models.MergeBatch{ID: batchID, Status: models.BatchPending, CandidateIDs: candidateIDs(cands)}
	if _, err := m.store.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	result = &BatchResult{Changes: []Change{}, Skipped: skipped}
	var mu sync.Mutex

	// records already started finish even if ctx is cancelled
	work := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, group := range groupByRecord(cands) {
		group := group
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			changes, sk, err := m.commitRecord(work, batchID, actor, group)
			if err != nil {
				failure := models.BatchFailure{
					BatchID:     batchID,
					RecordID:    group[0].RecordID,
					CandidateID: group[0].ID,
					Reason:      err.Error(),
				}
				if ferr := m.store.AddBatchFailure(work, &failure); ferr != nil {
					m.logger.Error("Failed to record batch failure", zap.String("batch_id", batchID), zap.Error(ferr))
				}
				m.logger.Warn("Record commit failed",
					zap.String("batch_id", batchID),
					zap.String("record_id", group[0].RecordID),
					zap.Error(err),
				)
				mu.Lock()
				result.Failures = append(result.Failures, failure)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			result.Changes = append(result.Changes, changes...)
			result.Skipped = append(result.Skipped, sk...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var fills, updates int
	for _, c := range result.Changes {
		if c.ChangeType == models.ChangeFill {
			fills++
		} else {
			updates++
		}
	}
	m.metrics.AddFieldChanges(string(models.ChangeFill), fills)
	m.metrics.AddFieldChanges(string(models.ChangeUpdate), updates)
	if err := m.summarize(work, batch, result); err != nil {
		return nil, err
	}
	now := time.Now()
	batch.CompletedAt = &now
	if err := m.store.SaveBatch(work, batch); err != nil {
		return nil, fmt.Errorf("save batch: %w", err)
	}
	sortChanges(result.Changes)
	result.Batch = *batch

	m.metrics.IncrementBatch(string(batch.Status))
	m.archive.Store(work, storage.BatchKey(batchID), result)

	m.logger.Info("Batch committed",
		zap.String("batch_id", batchID),
		zap.String("status", string(batch.Status)),
		zap.Int("fills", batch.Fills),
		zap.Int("updates", batch.Updates),
		zap.Int("failures", batch.Failures),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// commitRecord applies one record's candidates atomically.
func (m *Manager) commitRecord(ctx context.Context, batchID, actor string, cands []models.Candidate) ([]Change, []Skipped, error) {
	recordID := cands[0].RecordID
	release, err := m.locker.Obtain(ctx, lock.RecordKey(recordID))
	if err != nil {
		return nil, nil, fmt.Errorf("lock record: %w", err)
	}
	defer release()

	var changes []Change
	var skipped []Skipped
	err = m.store.WithinTx(ctx, func(tx *store.Store) error {
		rec, err := tx.GetRecord(ctx, recordID)
		if err != nil {
			return err
		}

		// candidates may have moved on since selection
		fresh, err := tx.GetCandidates(ctx, candidateIDs(cands))
		if err != nil {
			return err
		}
		var open []models.Candidate
		for _, c := range fresh {
			c := c
			if c.IsOpen() {
				open = append(open, c)
			} else {
				skipped = append(skipped, skip(c, "candidate is "+string(c.Status)))
			}
		}

		planned, sk := m.planRecord(rec, open)
		skipped = append(skipped, sk...)
		byID := make(map[string]*models.Candidate, len(open))
		for i := range open {
			byID[open[i].ID] = &open[i]
		}

		now := time.Now()
		for _, ch := range planned {
			if desc, ok := m.schema.Descriptor(ch.Field); ok {
				if err := m.validator.Check(desc, ch.NewValue); err != nil {
					return fmt.Errorf("validate %s: %w", ch.Field, err)
				}
			}
			c := byID[ch.CandidateID]
			if err := m.ledger.Ready(ctx, tx, c, actor); err != nil {
				return err
			}
			if _, err := tx.SetField(ctx, recordID, ch.Field, ch.NewValue); err != nil {
				return err
			}
			if err := m.ledger.MarkApplied(ctx, tx, c, batchID); err != nil {
				return err
			}
			seq, err := tx.NextSeq(ctx, recordID)
			if err != nil {
				return err
			}
			if err := tx.AppendHistory(ctx, &models.FieldHistoryEntry{
				RecordID:    recordID,
				Seq:         seq,
				FieldName:   ch.Field,
				OldValue:    ch.OldValue,
				NewValue:    ch.NewValue,
				ChangeType:  ch.ChangeType,
				Source:      ch.Source,
				Reason:      string(c.Kind) + " " + string(c.DifferenceType),
				BatchID:     batchID,
				CandidateID: c.ID,
				ChangedAt:   now,
			}); err != nil {
				return fmt.Errorf("append history: %w", err)
			}
		}
		changes = planned
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return changes, skipped, nil
}

// summarize sets the batch counters and status from the stored history and
// failures of the batch, so an earlier attempt with the same id is counted too.
// Changes of earlier attempts are added to result.
func (m *Manager) summarize(ctx context.Context, batch *models.MergeBatch, result *BatchResult) error {
	stored, err := m.storedResult(ctx, batch)
	if err != nil {
		return fmt.Errorf("load batch result: %w", err)
	}
	seen := make(map[string]struct{}, len(result.Changes))
	for _, c := range result.Changes {
		seen[c.CandidateID] = struct{}{}
	}
	var earlier []Change
	for _, c := range stored.Changes {
		if _, ok := seen[c.CandidateID]; !ok {
			earlier = append(earlier, c)
		}
	}
	result.Changes = append(earlier, result.Changes...)
	result.Failures = stored.Failures

	batch.Fills, batch.Updates = 0, 0
	for _, c := range stored.Changes {
		if c.ChangeType == models.ChangeFill {
			batch.Fills++
		} else {
			batch.Updates++
		}
	}
	batch.Failures = len(stored.Failures)
	batch.Status = batchStatus(len(stored.Changes), batch.Failures)
	return nil
}

// storedResult rebuilds the result of a finished batch.
func (m *Manager) storedResult(ctx context.Context, b *models.MergeBatch) (*BatchResult, error) {
	entries, err := m.store.BatchHistory(ctx, b.ID, models.ChangeFill, models.ChangeUpdate)
	if err != nil {
		return nil, err
	}
	failures, err := m.store.BatchFailures(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	result := &BatchResult{Batch: *b, Changes: make([]Change, 0, len(entries)), Failures: failures}
	for _, e := range entries {
		result.Changes = append(result.Changes, Change{
			CandidateID: e.CandidateID,
			RecordID:    e.RecordID,
			Field:       e.FieldName,
			ChangeType:  e.ChangeType,
			OldValue:    e.OldValue,
			NewValue:    e.NewValue,
			Source:      e.Source,
		})
	}
	sortChanges(result.Changes)
	return result, nil
}

// Batch returns a batch with its failures.
func (m *Manager) Batch(ctx context.Context, batchID string) (*BatchResult, error) {
	b, err := m.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return m.storedResult(ctx, b)
}

// History returns a record's field history in order.
func (m *Manager) History(ctx context.Context, recordID string) ([]models.FieldHistoryEntry, error) {
	if _, err := m.store.GetRecord(ctx, recordID); err != nil {
		return nil, err
	}
	return m.store.History(ctx, recordID)
}

func batchStatus(applied, failures int) models.BatchStatus {
	switch {
	case failures == 0:
		return models.BatchCompleted
	case applied == 0:
		return models.BatchFailed
	default:
		return models.BatchPartial
	}
}

func sortChanges(changes []Change) {
	sort.SliceStable(changes, func(i, j int) bool {
		if changes[i].RecordID != changes[j].RecordID {
			return changes[i].RecordID < changes[j].RecordID
		}
		return changes[i].Field < changes[j].Field
	})
}
