// Package merge previews, commits and rolls back batches of accepted candidates.
//
// A batch is planned from a Selection, either explicit candidate ids or every
// open auto-acceptable candidate of a scope. When several selected candidates
// target the same field, the one from the most trusted source wins, then the
// most recent observation; the others are reported as skipped.
//
// # Commit
//
// Commit applies changes record by record. Each record is handled under its lock
// in one transaction: the new value is validated, the candidate is decided and
// marked applied through the ledger, the field is written and a history entry is
// appended with the record's next sequence number. A failing record is rolled
// back alone and listed in the batch failures; the batch is then partial.
// Commits are idempotent on the batch id.
//
// # Rollback
//
// Rollback restores every field a batch changed to its previous value and
// appends a rollback entry per field. It refuses with errs.ErrStaleRollback when
// any of those fields changed after the batch.
//
// # Usage
//
//	plan, err := m.Preview(ctx, merge.Selection{CandidateIDs: ids})
//	res, err := m.Commit(ctx, merge.Selection{CandidateIDs: ids}, merge.CommitOptions{})
//	if errors.Is(res.Err(), errs.ErrPartialBatchFailure) { ... }
//	_, err = m.Rollback(ctx, res.Batch.ID)
package merge
