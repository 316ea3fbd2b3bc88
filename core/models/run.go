package models

import "time"

// RunScope selects the records an audit run covers.
type RunScope string

const (
	ScopeSingle RunScope = "single"
	ScopeIDs    RunScope = "ids"
	ScopeAll    RunScope = "all"
)

// RunStatus is an audit run's state.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether no further progress will be made.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// AuditRun is one asynchronous reconciliation pass over a scope.
type AuditRun struct {
	ID                 string     `gorm:"column:id;primaryKey;size:36" json:"id"`
	Scope              RunScope   `gorm:"column:scope;size:16" json:"scope"`
	TargetIDs          []string   `gorm:"column:target_ids;serializer:json" json:"target_ids,omitempty"`
	Status             RunStatus  `gorm:"column:status;size:16;index" json:"status"`
	Total              int        `gorm:"column:total" json:"total"`
	Audited            int        `gorm:"column:audited" json:"audited"`
	Failed             int        `gorm:"column:failed" json:"failed"`
	DiscrepanciesFound int        `gorm:"column:discrepancies_found" json:"discrepancies_found"`
	EnrichmentsFound   int        `gorm:"column:enrichments_found" json:"enrichments_found"`
	AutoApply          bool       `gorm:"column:auto_apply" json:"auto_apply"`
	BatchID            string     `gorm:"column:batch_id;size:36" json:"batch_id,omitempty"`
	JobID              string     `gorm:"column:job_id;size:36" json:"job_id,omitempty"`
	Error              string     `gorm:"column:error;type:text" json:"error,omitempty"`
	StartedAt          *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt        *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt          time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

// AuditRunFailure records a record that could not be audited.
type AuditRunFailure struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	RunID     string    `gorm:"column:run_id;size:36;index" json:"run_id"`
	RecordID  string    `gorm:"column:record_id;size:64" json:"record_id"`
	Reason    string    `gorm:"column:reason;type:text" json:"reason"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}
