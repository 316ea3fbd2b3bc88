package store

import (
	"context"
	"errors"

	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/models"

	"gorm.io/gorm"
)

// CandidateFilter narrows ListCandidates. Zero fields do not filter.
type CandidateFilter struct {
	Kind           models.CandidateKind
	Statuses       []models.Status
	RecordIDs      []string
	FieldName      string
	RunID          string
	AutoAcceptable *bool
	Page           Page
}

// GetCandidate loads a candidate.
func (s *Store) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	var c models.Candidate
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err, errs.ErrUnknownCandidate, id)
	}
	return &c, nil
}

// GetCandidates loads candidates by id. Missing ids are skipped.
func (s *Store) GetCandidates(ctx context.Context, ids []string) ([]models.Candidate, error) {
	var out []models.Candidate
	if len(ids) == 0 {
		return out, nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("record_id, field_name, id").Find(&out).Error
	return out, err
}

// SaveCandidate inserts or updates a candidate.
func (s *Store) SaveCandidate(ctx context.Context, c *models.Candidate) error {
	return s.db.WithContext(ctx).Save(c).Error
}

// FindOpenCandidate returns the open candidate matching the dedup key, or nil.
func (s *Store) FindOpenCandidate(ctx context.Context, kind models.CandidateKind, recordID, field, observedKey, source string) (*models.Candidate, error) {
	return s.FindCandidate(ctx, kind, recordID, field, observedKey, source, models.OpenStatuses())
}

// FindCandidate returns the most recent candidate of a record field in one of
// statuses, or nil. Empty observedKey or source match any.
func (s *Store) FindCandidate(ctx context.Context, kind models.CandidateKind, recordID, field, observedKey, source string, statuses []models.Status) (*models.Candidate, error) {
	q := s.db.WithContext(ctx).
		Where("kind = ? AND record_id = ? AND field_name = ? AND status IN ?", kind, recordID, field, statuses)
	if observedKey != "" {
		q = q.Where("observed_key = ?", observedKey)
	}
	if source != "" {
		q = q.Where("source_name = ?", source)
	}
	var c models.Candidate
	err := q.Order("updated_at DESC, id DESC").First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CandidatesForField returns a field's candidates in the given statuses.
func (s *Store) CandidatesForField(ctx context.Context, recordID, field string, statuses ...models.Status) ([]models.Candidate, error) {
	q := s.db.WithContext(ctx).Where("record_id = ? AND field_name = ?", recordID, field)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var out []models.Candidate
	err := q.Order("created_at, id").Find(&out).Error
	return out, err
}

// ListCandidates returns candidates matching f.
func (s *Store) ListCandidates(ctx context.Context, f CandidateFilter) ([]models.Candidate, error) {
	q := s.db.WithContext(ctx).Model(&models.Candidate{})
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if len(f.RecordIDs) > 0 {
		q = q.Where("record_id IN ?", f.RecordIDs)
	}
	if f.FieldName != "" {
		q = q.Where("field_name = ?", f.FieldName)
	}
	if f.RunID != "" {
		q = q.Where("run_id = ?", f.RunID)
	}
	if f.AutoAcceptable != nil {
		q = q.Where("auto_acceptable = ?", *f.AutoAcceptable)
	}
	var out []models.Candidate
	err := f.Page.apply(q.Order("record_id, field_name, created_at, id")).Find(&out).Error
	return out, err
}

// AddEvent appends a resolution event.
func (s *Store) AddEvent(ctx context.Context, ev *models.ResolutionEvent) error {
	return s.db.WithContext(ctx).Create(ev).Error
}

// EventsForCandidate returns a candidate's transitions in order.
func (s *Store) EventsForCandidate(ctx context.Context, candidateID string) ([]models.ResolutionEvent, error) {
	var out []models.ResolutionEvent
	err := s.db.WithContext(ctx).Where("candidate_id = ?", candidateID).Order("id").Find(&out).Error
	return out, err
}

// TransitionCandidate writes status and the given columns if the candidate is
// still in from. It reports whether the row changed.
func (s *Store) TransitionCandidate(ctx context.Context, id string, from, to models.Status, updates map[string]any) (bool, error) {
	cols := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		cols[k] = v
	}
	cols["status"] = to
	res := s.db.WithContext(ctx).
		Model(&models.Candidate{}).
		Where("id = ? AND status = ?", id, from).
		Updates(cols)
	return res.RowsAffected == 1, res.Error
}
