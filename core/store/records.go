package store

import (
	"context"
	"fmt"
	"time"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/models"

	"gorm.io/gorm/clause"
)

// GetRecord loads a record.
func (s *Store) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	var rec models.Record
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, notFound(err, errs.ErrUnknownRecord, id)
	}
	if rec.Fields == nil {
		rec.Fields = models.FieldMap{}
	}
	return &rec, nil
}

// PutRecord inserts or replaces a record.
func (s *Store) PutRecord(ctx context.Context, rec *models.Record) error {
	if rec.Fields == nil {
		rec.Fields = models.FieldMap{}
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(rec).Error
}

// SetField writes one field and bumps the record version. The write is
// conditional on the version read, so a concurrent writer is reported rather
// than overwritten.
func (s *Store) SetField(ctx context.Context, recordID, field string, value compare.Value) (*models.Record, error) {
	rec, err := s.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	fields := make(models.FieldMap, len(rec.Fields)+1)
	for k, v := range rec.Fields {
		fields[k] = v
	}
	if value.IsPresent() {
		fields[field] = value
	} else {
		delete(fields, field)
	}

	next := models.Record{Fields: fields, Version: rec.Version + 1, UpdatedAt: time.Now()}
	res := s.db.WithContext(ctx).
		Model(&models.Record{ID: rec.ID}).
		Where("version = ?", rec.Version).
		Select("fields", "version", "updated_at").
		Updates(&next)
	if res.Error != nil {
		return nil, fmt.Errorf("set field %s.%s: %w", recordID, field, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("set field %s.%s: record modified concurrently", recordID, field)
	}
	rec.Fields = fields
	rec.Version = next.Version
	rec.UpdatedAt = next.UpdatedAt
	return rec, nil
}

// ListRecordIDs returns every record id in order.
func (s *Store) ListRecordIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.Record{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

// ExistingRecordIDs returns the subset of ids that exist.
func (s *Store) ExistingRecordIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	var existing []string
	if err := s.db.WithContext(ctx).Model(&models.Record{}).Where("id IN ?", ids).Pluck("id", &existing).Error; err != nil {
		return nil, err
	}
	for _, id := range existing {
		found[id] = struct{}{}
	}
	return found, nil
}

// AddObservations appends observations. Observations are immutable; an id that
// already exists is left untouched.
func (s *Store) AddObservations(ctx context.Context, obs ...*models.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(obs).Error
}

// ObservationsForRecord returns a record's observations, oldest first.
func (s *Store) ObservationsForRecord(ctx context.Context, recordID string) ([]models.Observation, error) {
	var obs []models.Observation
	err := s.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("observed_at, id").
		Find(&obs).Error
	return obs, err
}
