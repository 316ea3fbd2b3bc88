package store

import (
	"context"

	"catalog-reconciler/core/models"
)

// NextSeq returns the next history sequence number for a record. Callers hold
// the record's lock and run inside a transaction.
func (s *Store) NextSeq(ctx context.Context, recordID string) (int64, error) {
	var last int64
	err := s.db.WithContext(ctx).
		Model(&models.FieldHistoryEntry{}).
		Where("record_id = ?", recordID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&last).Error
	return last + 1, err
}

// AppendHistory adds an entry.
func (s *Store) AppendHistory(ctx context.Context, e *models.FieldHistoryEntry) error {
	return s.db.WithContext(ctx).Create(e).Error
}

// History returns a record's entries in sequence order.
func (s *Store) History(ctx context.Context, recordID string) ([]models.FieldHistoryEntry, error) {
	var out []models.FieldHistoryEntry
	err := s.db.WithContext(ctx).Where("record_id = ?", recordID).Order("seq").Find(&out).Error
	return out, err
}

// BatchHistory returns the entries written by a batch, ordered by record and seq.
func (s *Store) BatchHistory(ctx context.Context, batchID string, changeTypes ...models.ChangeType) ([]models.FieldHistoryEntry, error) {
	q := s.db.WithContext(ctx).Where("batch_id = ?", batchID)
	if len(changeTypes) > 0 {
		q = q.Where("change_type IN ?", changeTypes)
	}
	var out []models.FieldHistoryEntry
	err := q.Order("record_id, seq").Find(&out).Error
	return out, err
}

// LaterChange reports whether a field received any entry after seq.
func (s *Store) LaterChange(ctx context.Context, recordID, field string, seq int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.FieldHistoryEntry{}).
		Where("record_id = ? AND field_name = ? AND seq > ?", recordID, field, seq).
		Count(&n).Error
	return n > 0, err
}
