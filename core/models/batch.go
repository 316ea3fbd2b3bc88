package models

import (
	"time"

	"catalog-reconciler/core/compare"
)

// BatchStatus is a merge batch's state.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchCompleted  BatchStatus = "completed"
	BatchPartial    BatchStatus = "partial"
	BatchFailed     BatchStatus = "failed"
	BatchRolledBack BatchStatus = "rolled_back"
)

// MergeBatch is a committed group of field changes.
type MergeBatch struct {
	ID               string      `gorm:"column:id;primaryKey;size:36" json:"id"`
	Status           BatchStatus `gorm:"column:status;size:16" json:"status"`
	Fills            int         `gorm:"column:fills" json:"fills"`
	Updates          int         `gorm:"column:updates" json:"updates"`
	Failures         int         `gorm:"column:failures" json:"failures"`
	CandidateIDs     []string    `gorm:"column:candidate_ids;serializer:json" json:"candidate_ids"`
	RolledBackFields int         `gorm:"column:rolled_back_fields" json:"rolled_back_fields,omitempty"`
	CreatedAt        time.Time   `gorm:"column:created_at" json:"created_at"`
	CompletedAt      *time.Time  `gorm:"column:completed_at" json:"completed_at,omitempty"`
	RolledBackAt     *time.Time  `gorm:"column:rolled_back_at" json:"rolled_back_at,omitempty"`
}

// BatchFailure records a record whose changes could not be committed.
type BatchFailure struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	BatchID     string    `gorm:"column:batch_id;size:36;index" json:"batch_id"`
	RecordID    string    `gorm:"column:record_id;size:64" json:"record_id"`
	CandidateID string    `gorm:"column:candidate_id;size:36" json:"candidate_id,omitempty"`
	Reason      string    `gorm:"column:reason;type:text" json:"reason"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
}

// ChangeType classifies a history entry.
type ChangeType string

const (
	ChangeFill     ChangeType = "fill"
	ChangeUpdate   ChangeType = "update"
	ChangeRollback ChangeType = "rollback"
)

// FieldHistoryEntry is one append-only change to a record field. Seq is strictly
// increasing per record.
type FieldHistoryEntry struct {
	ID          uint          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RecordID    string        `gorm:"column:record_id;size:64;uniqueIndex:idx_history_record_seq" json:"record_id"`
	Seq         int64         `gorm:"column:seq;uniqueIndex:idx_history_record_seq" json:"seq"`
	FieldName   string        `gorm:"column:field_name;size:64" json:"field_name"`
	OldValue    compare.Value `gorm:"column:old_value;serializer:json" json:"old_value"`
	NewValue    compare.Value `gorm:"column:new_value;serializer:json" json:"new_value"`
	ChangeType  ChangeType    `gorm:"column:change_type;size:16" json:"change_type"`
	Source      string        `gorm:"column:source;size:128" json:"source"`
	Reason      string        `gorm:"column:reason;type:text" json:"reason,omitempty"`
	BatchID     string        `gorm:"column:batch_id;size:36;index" json:"batch_id"`
	CandidateID string        `gorm:"column:candidate_id;size:36" json:"candidate_id,omitempty"`
	ChangedAt   time.Time     `gorm:"column:changed_at" json:"changed_at"`
}

// TableName keeps the history table name stable.
func (FieldHistoryEntry) TableName() string {
	return "field_history"
}
