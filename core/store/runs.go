package store

import (
	"context"
	"time"

	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateRun inserts run unless a run with the same id exists. It reports whether
// the row was created; either way run holds the stored row afterwards.
func (s *Store) CreateRun(ctx context.Context, run *models.AuditRun) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(run)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	stored, err := s.GetRun(ctx, run.ID)
	if err != nil {
		return false, err
	}
	*run = *stored
	return false, nil
}

// GetRun loads a run.
func (s *Store) GetRun(ctx context.Context, id string) (*models.AuditRun, error) {
	var run models.AuditRun
	if err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, notFound(err, errs.ErrUnknownRun, id)
	}
	return &run, nil
}

// UpdateRun applies column updates to a run.
func (s *Store) UpdateRun(ctx context.Context, id string, updates map[string]any) error {
	return s.db.WithContext(ctx).Model(&models.AuditRun{}).Where("id = ?", id).Updates(updates).Error
}

// TransitionRun moves a run from one of the given states to next. It reports
// false when the run was not in any of them.
func (s *Store) TransitionRun(ctx context.Context, id string, next models.RunStatus, from ...models.RunStatus) (bool, error) {
	updates := map[string]any{"status": next}
	now := time.Now()
	if next == models.RunRunning {
		updates["started_at"] = now
	}
	if next.Terminal() {
		updates["completed_at"] = now
	}
	res := s.db.WithContext(ctx).Model(&models.AuditRun{}).Where("id = ? AND status IN ?", id, from).Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// RunCounters are increments applied to a run.
type RunCounters struct {
	Audited       int
	Failed        int
	Discrepancies int
	Enrichments   int
}

// IncrementRunCounters adds c to the run counters in one statement.
func (s *Store) IncrementRunCounters(ctx context.Context, id string, c RunCounters) error {
	return s.db.WithContext(ctx).Model(&models.AuditRun{}).Where("id = ?", id).Updates(map[string]any{
		"audited":             gorm.Expr("audited + ?", c.Audited),
		"failed":              gorm.Expr("failed + ?", c.Failed),
		"discrepancies_found": gorm.Expr("discrepancies_found + ?", c.Discrepancies),
		"enrichments_found":   gorm.Expr("enrichments_found + ?", c.Enrichments),
	}).Error
}

// AddRunFailure records a record-level failure.
func (s *Store) AddRunFailure(ctx context.Context, f *models.AuditRunFailure) error {
	return s.db.WithContext(ctx).Create(f).Error
}

// RunFailures lists a run's failures.
func (s *Store) RunFailures(ctx context.Context, runID string, page Page) ([]models.AuditRunFailure, error) {
	var out []models.AuditRunFailure
	err := page.apply(s.db.WithContext(ctx).Where("run_id = ?", runID).Order("id")).Find(&out).Error
	return out, err
}
