package checks

import (
	"context"
	"fmt"
	"time"

	"catalog-reconciler/core/models"

	"gorm.io/gorm"
)

// LedgerReport lists inconsistencies between candidates, history and batches.
type LedgerReport struct {
	// OrphanCandidates reference a record that does not exist.
	OrphanCandidates []string `json:"orphan_candidates"`
	// AppliedWithoutHistory are applied candidates with no history entry.
	AppliedWithoutHistory []string `json:"applied_without_history"`
	// StuckBatches stayed pending longer than the threshold.
	StuckBatches []string `json:"stuck_batches"`
}

// OK reports whether no inconsistency was found.
func (r *LedgerReport) OK() bool {
	return len(r.OrphanCandidates) == 0 && len(r.AppliedWithoutHistory) == 0 && len(r.StuckBatches) == 0
}

// CheckLedger cross-checks candidates against records and history, and finds
// batches left pending for longer than stuckAfter.
func CheckLedger(ctx context.Context, db *gorm.DB, stuckAfter time.Duration) (*LedgerReport, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	q := db.WithContext(ctx)
	report := &LedgerReport{
		OrphanCandidates:      []string{},
		AppliedWithoutHistory: []string{},
		StuckBatches:          []string{},
	}

	records := q.Model(&models.Record{}).Select("id")
	if err := q.Model(&models.Candidate{}).
		Where("record_id NOT IN (?)", records).
		Order("id").
		Pluck("id", &report.OrphanCandidates).Error; err != nil {
		return nil, fmt.Errorf("orphan candidates: %w", err)
	}

	historic := q.Model(&models.FieldHistoryEntry{}).Select("candidate_id").Where("candidate_id <> ''")
	if err := q.Model(&models.Candidate{}).
		Where("status = ? AND id NOT IN (?)", models.StatusApplied, historic).
		Order("id").
		Pluck("id", &report.AppliedWithoutHistory).Error; err != nil {
		return nil, fmt.Errorf("applied candidates: %w", err)
	}

	if err := q.Model(&models.MergeBatch{}).
		Where("status = ? AND created_at < ?", models.BatchPending, time.Now().Add(-stuckAfter)).
		Order("id").
		Pluck("id", &report.StuckBatches).Error; err != nil {
		return nil, fmt.Errorf("pending batches: %w", err)
	}
	return report, nil
}
