// Package audit runs reconciliation over many records as background jobs.
//
// StartRun persists a queued run and enqueues an audit_run job. The job resolves
// the run's scope, reconciles each record on a bounded worker pool and updates
// the run counters after every record, so RunStatus always shows consistent
// progress. A failing record is listed in the run failures and counted; only a
// configuration error stops the run. Cancel stops scheduling further records and
// lets those already started finish.
//
// With AutoApply set, a completed run commits every auto-acceptable candidate of
// its scope as one merge batch.
package audit
