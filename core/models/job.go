package models

import "time"

// JobStatus is a job's state.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is a persisted unit of asynchronous work claimed by id.
type Job struct {
	ID         string     `gorm:"column:id;primaryKey;size:36" json:"id"`
	Type       string     `gorm:"column:type;size:32;index" json:"type"`
	Payload    []byte     `gorm:"column:payload" json:"payload,omitempty"`
	Status     JobStatus  `gorm:"column:status;size:16;index" json:"status"`
	Attempts   int        `gorm:"column:attempts" json:"attempts"`
	ClaimedBy  string     `gorm:"column:claimed_by;size:64" json:"claimed_by,omitempty"`
	Error      string     `gorm:"column:error;type:text" json:"error,omitempty"`
	CreatedAt  time.Time  `gorm:"column:created_at" json:"created_at"`
	StartedAt  *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
}

// All returns every model for migrations and schema checks.
func All() []any {
	return []any{
		&Record{},
		&Observation{},
		&Candidate{},
		&ResolutionEvent{},
		&AuditRun{},
		&AuditRunFailure{},
		&MergeBatch{},
		&BatchFailure{},
		&FieldHistoryEntry{},
		&Job{},
	}
}
