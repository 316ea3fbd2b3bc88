package merge

import (
	"context"
	"fmt"
	"time"

	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/lock"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/store"

	"go.uber.org/zap"
)

// Rollback restores the fields a batch changed. Every field is checked for later
// changes before anything is written. Rolling back a rolled back batch returns
// the earlier result. Candidate statuses are left as they are.
func (m *Manager) Rollback(ctx context.Context, batchID string) (*RollbackResult, error) {
	batch, err := m.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	done, err := m.store.BatchHistory(ctx, batchID, models.ChangeRollback)
	if err != nil {
		return nil, err
	}
	if batch.Status == models.BatchRolledBack {
		return &RollbackResult{BatchID: batchID, Restored: done}, nil
	}
	if batch.Status == models.BatchPending {
		return nil, fmt.Errorf("batch %s is still being committed", batchID)
	}

	entries, err := m.store.BatchHistory(ctx, batchID, models.ChangeFill, models.ChangeUpdate)
	if err != nil {
		return nil, err
	}

	// fields restored by an interrupted earlier attempt
	restored := make(map[string]struct{}, len(done))
	for _, e := range done {
		restored[e.RecordID+"\x00"+e.FieldName] = struct{}{}
	}
	var pending []models.FieldHistoryEntry
	for _, e := range entries {
		if _, ok := restored[e.RecordID+"\x00"+e.FieldName]; !ok {
			pending = append(pending, e)
		}
	}

	for _, e := range pending {
		if err := checkStale(ctx, m.store, e); err != nil {
			return nil, err
		}
	}

	result := &RollbackResult{BatchID: batchID, Restored: done}
	for _, group := range groupEntries(pending) {
		written, err := m.rollbackRecord(ctx, batchID, group)
		if err != nil {
			return nil, fmt.Errorf("rollback record %s: %w", group[0].RecordID, err)
		}
		result.Restored = append(result.Restored, written...)
	}

	now := time.Now()
	batch.Status = models.BatchRolledBack
	batch.RolledBackFields = len(result.Restored)
	batch.RolledBackAt = &now
	if err := m.store.SaveBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("save batch: %w", err)
	}
	m.metrics.IncrementBatch(string(models.BatchRolledBack))
	m.metrics.AddFieldChanges(string(models.ChangeRollback), len(result.Restored))

	m.logger.Info("Batch rolled back",
		zap.String("batch_id", batchID),
		zap.Int("fields", len(result.Restored)),
	)
	return result, nil
}

func (m *Manager) rollbackRecord(ctx context.Context, batchID string, entries []models.FieldHistoryEntry) ([]models.FieldHistoryEntry, error) {
	recordID := entries[0].RecordID
	release, err := m.locker.Obtain(ctx, lock.RecordKey(recordID))
	if err != nil {
		return nil, fmt.Errorf("lock record: %w", err)
	}
	defer release()

	var written []models.FieldHistoryEntry
	err = m.store.WithinTx(ctx, func(tx *store.Store) error {
		now := time.Now()
		for _, e := range entries {
			// a commit may have slipped in after the first check
			if err := checkStale(ctx, tx, e); err != nil {
				return err
			}
			if _, err := tx.SetField(ctx, recordID, e.FieldName, e.OldValue); err != nil {
				return err
			}
			seq, err := tx.NextSeq(ctx, recordID)
			if err != nil {
				return err
			}
			entry := models.FieldHistoryEntry{
				RecordID:    recordID,
				Seq:         seq,
				FieldName:   e.FieldName,
				OldValue:    e.NewValue,
				NewValue:    e.OldValue,
				ChangeType:  models.ChangeRollback,
				Source:      e.Source,
				Reason:      fmt.Sprintf("rollback of batch %s seq %d", batchID, e.Seq),
				BatchID:     batchID,
				CandidateID: e.CandidateID,
				ChangedAt:   now,
			}
			if err := tx.AppendHistory(ctx, &entry); err != nil {
				return fmt.Errorf("append history: %w", err)
			}
			written = append(written, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}

func checkStale(ctx context.Context, st *store.Store, e models.FieldHistoryEntry) error {
	later, err := st.LaterChange(ctx, e.RecordID, e.FieldName, e.Seq)
	if err != nil {
		return err
	}
	if later {
		return fmt.Errorf("%w: %s.%s changed after seq %d", errs.ErrStaleRollback, e.RecordID, e.FieldName, e.Seq)
	}
	return nil
}

// groupEntries splits entries ordered by record into per-record runs.
func groupEntries(entries []models.FieldHistoryEntry) [][]models.FieldHistoryEntry {
	var out [][]models.FieldHistoryEntry
	for i := 0; i < len(entries); {
		j := i
		for j < len(entries) && entries[j].RecordID == entries[i].RecordID {
			j++
		}
		out = append(out, entries[i:j])
		i = j
	}
	return out
}
