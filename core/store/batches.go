package store

import (
	"context"

	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/models"

	"gorm.io/gorm/clause"
)

// CreateBatch inserts batch unless one with the same id exists, reporting
// whether it was created. batch holds the stored row afterwards.
func (s *Store) CreateBatch(ctx context.Context, batch *models.MergeBatch) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(batch)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	stored, err := s.GetBatch(ctx, batch.ID)
	if err != nil {
		return false, err
	}
	*batch = *stored
	return false, nil
}

// GetBatch loads a batch.
func (s *Store) GetBatch(ctx context.Context, id string) (*models.MergeBatch, error) {
	var b models.MergeBatch
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err, errs.ErrUnknownBatch, id)
	}
	return &b, nil
}

// SaveBatch updates a batch.
func (s *Store) SaveBatch(ctx context.Context, b *models.MergeBatch) error {
	return s.db.WithContext(ctx).Save(b).Error
}

// AddBatchFailure records a record-level commit failure.
func (s *Store) AddBatchFailure(ctx context.Context, f *models.BatchFailure) error {
	return s.db.WithContext(ctx).Create(f).Error
}

// BatchFailures lists a batch's failures.
func (s *Store) BatchFailures(ctx context.Context, batchID string) ([]models.BatchFailure, error) {
	var out []models.BatchFailure
	err := s.db.WithContext(ctx).Where("batch_id = ?", batchID).Order("id").Find(&out).Error
	return out, err
}
