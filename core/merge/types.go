package merge

import (
	"fmt"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/errs"
	"catalog-reconciler/core/models"
	"catalog-reconciler/core/reconcile"
	"catalog-reconciler/core/trust"
)

// Selection picks the candidates of a batch.
type Selection struct {
	// CandidateIDs selects candidates explicitly.
	CandidateIDs []string `json:"candidate_ids,omitempty"`

	// Scope selects every open auto-acceptable candidate of its records.
	Scope *reconcile.Scope `json:"scope,omitempty"`
}

// Validate checks that exactly one selection mode is used.
func (s Selection) Validate() error {
	switch {
	case len(s.CandidateIDs) > 0 && s.Scope != nil:
		return fmt.Errorf("select candidate ids or a scope, not both")
	case s.Scope != nil:
		return s.Scope.Validate()
	case len(s.CandidateIDs) == 0:
		return fmt.Errorf("empty selection")
	}
	return nil
}

// Change is one field write of a batch.
type Change struct {
	CandidateID string               `json:"candidate_id"`
	Kind        models.CandidateKind `json:"kind"`
	RecordID    string               `json:"record_id"`
	Field       string               `json:"field_name"`
	ChangeType  models.ChangeType    `json:"change_type"`
	OldValue    compare.Value        `json:"old_value"`
	NewValue    compare.Value        `json:"new_value"`
	Source      string               `json:"source"`
	TrustLevel  trust.Level          `json:"trust_level"`
}

// Skipped is a selected candidate that will not be applied.
type Skipped struct {
	CandidateID string `json:"candidate_id"`
	RecordID    string `json:"record_id,omitempty"`
	Field       string `json:"field_name,omitempty"`
	Reason      string `json:"reason"`
}

// Plan is the dry-run outcome of a selection.
type Plan struct {
	Fills   int       `json:"fills"`
	Updates int       `json:"updates"`
	Changes []Change  `json:"changes"`
	Skipped []Skipped `json:"skipped,omitempty"`
}

func (p *Plan) add(c Change) {
	p.Changes = append(p.Changes, c)
	if c.ChangeType == models.ChangeFill {
		p.Fills++
	} else {
		p.Updates++
	}
}

// CommitOptions tune a commit.
type CommitOptions struct {
	// BatchID makes the commit idempotent; empty generates one.
	BatchID string

	// Actor is recorded on the decisions a commit makes. Defaults to the policy actor.
	Actor string
}

// BatchResult is the outcome of a commit.
type BatchResult struct {
	Batch    models.MergeBatch     `json:"batch"`
	Changes  []Change              `json:"changes"`
	Skipped  []Skipped             `json:"skipped,omitempty"`
	Failures []models.BatchFailure `json:"failures,omitempty"`
}

// Err reports errs.ErrPartialBatchFailure when any record failed.
func (r *BatchResult) Err() error {
	if r == nil || r.Batch.Failures == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d record(s) failed in batch %s", errs.ErrPartialBatchFailure, r.Batch.Failures, r.Batch.ID)
}

// RollbackResult is the outcome of a rollback.
type RollbackResult struct {
	BatchID  string                     `json:"batch_id"`
	Restored []models.FieldHistoryEntry `json:"restored"`
}
