package store

import (
	"context"
	"time"

	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/models"

	"gorm.io/gorm"
)

// CreateJob inserts a job.
func (s *Store) CreateJob(ctx context.Context, job *models.Job) error {
	return s.db.WithContext(ctx).Create(job).Error
}

// GetJob loads a job.
func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var j models.Job
	if err := s.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, notFound(err, errs.ErrUnknownJob, id)
	}
	return &j, nil
}

// ClaimJob moves a queued job to running for worker. It reports false when the
// job was already claimed or is no longer queued.
func (s *Store) ClaimJob(ctx context.Context, id, worker string) (bool, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.JobQueued).
		Updates(map[string]any{
			"status":     models.JobRunning,
			"claimed_by": worker,
			"attempts":   gorm.Expr("attempts + 1"),
			"started_at": now,
		})
	return res.RowsAffected == 1, res.Error
}

// FinishJob records a job's terminal state unless it was cancelled meanwhile.
func (s *Store) FinishJob(ctx context.Context, id string, status models.JobStatus, errMsg string) error {
	return s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status <> ?", id, models.JobCancelled).
		Updates(map[string]any{
			"status":      status,
			"error":       errMsg,
			"finished_at": time.Now(),
		}).Error
}

// CancelJob marks a queued or running job cancelled, reporting whether it changed.
func (s *Store) CancelJob(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ? AND status IN ?", id, []models.JobStatus{models.JobQueued, models.JobRunning}).
		Updates(map[string]any{"status": models.JobCancelled, "finished_at": time.Now()})
	return res.RowsAffected > 0, res.Error
}

// QueuedJobIDs returns the ids of queued jobs, oldest first.
func (s *Store) QueuedJobIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("status = ?", models.JobQueued).
		Order("created_at, id").
		Pluck("id", &ids).Error
	return ids, err
}
