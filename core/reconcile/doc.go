// Package reconcile compares a record's current field values against the values
// asserted by external sources and turns the differences into candidates.
//
// # Architecture
//
// The package consists of two components:
//
// 1. Engine: ReconcileRecord loads a record and its observations under the record's
//    lock, compares every field concurrently with the FieldComparator, and emits
//    discrepancies (populated fields) and enrichments (empty fields) in a single
//    transaction. Emission is idempotent: a candidate matching an open one on
//    (record, field, observed value, source) refreshes it instead of duplicating it.
//    Applied candidates are superseded when a newer, different observation arrives.
//    Concurrent calls for the same record are collapsed with singleflight.
//
// 2. ScopeIndex: resolves audit run scopes to record ids against the database
//    at the moment a run starts, reporting requested ids that have no record.
//
// # Usage Example
//
//	engine := reconcile.New(reconcile.Deps{
//	    Store:  st,
//	    Schema: compare.DefaultSchema(),
//	    Policy: trust.DefaultPolicy(),
//	    Ledger: ledger.New(st, logger, m),
//	    Locker: lock.NewLocal(),
//	    Logger: logger,
//	})
//	result, err := engine.ReconcileRecord(ctx, "42", runID)
package reconcile
