package models

import (
	"time"

	"catalog-reconciler/core/compare"
	"catalog-reconciler/core/trust"
)

// CandidateKind discriminates discrepancies from enrichments.
type CandidateKind string

const (
	// KindDiscrepancy proposes replacing a populated value.
	KindDiscrepancy CandidateKind = "discrepancy"
	// KindEnrichment proposes filling an empty field.
	KindEnrichment CandidateKind = "enrichment"
)

// Status is a candidate's lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusProvisional Status = "provisional"
	StatusAccepted    Status = "accepted"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusIgnored     Status = "ignored"
	StatusApplied     Status = "applied"
	StatusSuperseded  Status = "superseded"
)

// OpenStatuses are the states in which a candidate still awaits a decision or a
// commit. Reconciliation refreshes candidates in these states instead of
// duplicating them.
func OpenStatuses() []Status {
	return []Status{StatusPending, StatusProvisional, StatusAccepted, StatusApproved}
}

// Alternate is a ranked secondary value for an enrichment.
type Alternate struct {
	Value         compare.Value `json:"value"`
	SourceName    string        `json:"source_name"`
	TrustLevel    trust.Level   `json:"trust_level"`
	Confidence    float64       `json:"confidence"`
	ObservationID string        `json:"observation_id"`
	ObservedAt    time.Time     `json:"observed_at"`
}

// Candidate is a proposed change to one field of one record.
type Candidate struct {
	ID             string             `gorm:"column:id;primaryKey;size:36" json:"id"`
	Kind           CandidateKind      `gorm:"column:kind;size:16;index" json:"kind"`
	RecordID       string             `gorm:"column:record_id;size:64;index:idx_candidate_lookup" json:"record_id"`
	FieldName      string             `gorm:"column:field_name;size:64;index:idx_candidate_lookup" json:"field_name"`
	CurrentValue   compare.Value      `gorm:"column:current_value;serializer:json" json:"current_value"`
	ObservedValue  compare.Value      `gorm:"column:observed_value;serializer:json" json:"observed_value"`
	ObservedKey    string             `gorm:"column:observed_key;size:255;index:idx_candidate_lookup" json:"-"`
	DifferenceType compare.Difference `gorm:"column:difference_type;size:24" json:"difference_type"`
	Similarity     float64            `gorm:"column:similarity" json:"similarity"`
	Confidence     float64            `gorm:"column:confidence" json:"confidence"`
	TrustLevel     trust.Level        `gorm:"column:trust_level;size:16" json:"trust_level"`
	SourceName     string             `gorm:"column:source_name;size:128;index:idx_candidate_lookup" json:"source_name"`
	SourceRef      string             `gorm:"column:source_ref;size:255" json:"source_ref,omitempty"`
	ObservationIDs []string           `gorm:"column:observation_ids;serializer:json" json:"observation_ids"`
	Alternates     []Alternate        `gorm:"column:alternates;serializer:json" json:"alternates,omitempty"`
	AutoAcceptable bool               `gorm:"column:auto_acceptable;index" json:"auto_acceptable"`
	Status         Status             `gorm:"column:status;size:16;index" json:"status"`
	RunID          string             `gorm:"column:run_id;size:36;index" json:"run_id,omitempty"`
	ObservedAt     time.Time          `gorm:"column:observed_at" json:"observed_at"`
	CreatedAt      time.Time          `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time          `gorm:"column:updated_at" json:"updated_at"`
	ResolvedAt     *time.Time         `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	Resolution     string             `gorm:"column:resolution;size:16" json:"resolution,omitempty"`
	ResolvedBy     string             `gorm:"column:resolved_by;size:128" json:"resolved_by,omitempty"`
	Notes          string             `gorm:"column:notes;type:text" json:"notes,omitempty"`
}

// IsOpen reports whether the candidate is in one of OpenStatuses.
func (c *Candidate) IsOpen() bool {
	for _, s := range OpenStatuses() {
		if c.Status == s {
			return true
		}
	}
	return false
}

// ResolutionEvent records one lifecycle transition of a candidate.
type ResolutionEvent struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CandidateID string    `gorm:"column:candidate_id;size:36;index" json:"candidate_id"`
	From        Status    `gorm:"column:from_status;size:16" json:"from"`
	To          Status    `gorm:"column:to_status;size:16" json:"to"`
	Decision    string    `gorm:"column:decision;size:16" json:"decision,omitempty"`
	Actor       string    `gorm:"column:actor;size:128" json:"actor"`
	Notes       string    `gorm:"column:notes;type:text" json:"notes,omitempty"`
	At          time.Time `gorm:"column:at" json:"at"`
}
