// Package errs defines the error taxonomy shared by the reconciliation packages.
//
// Every package returns these sentinels, usually wrapped with context via
// fmt.Errorf("...: %w", err). Callers branch with errors.Is. The HTTP layer maps
// them to status codes in one place (see feature/reconciliation).
//
// # Taxonomy
//
//   - ErrInvalidFieldType: a field descriptor has an unknown type.
//   - ErrUnknownRecord: the canonical record does not exist.
//   - ErrInvalidTransition: a ledger decision is not allowed from the current state.
//   - ErrStaleRollback: a later batch touched a field the rollback would restore.
//   - ErrPartialBatchFailure: some records of a batch failed, others were applied.
//   - ErrMalformedPolicy: trust policy or field schema configuration is invalid.
package errs
