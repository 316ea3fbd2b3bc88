// Package integrity provides system health checks for the reconciler's
// infrastructure.
//
// # Checks Provided
//
//   - Structure: Checks that the archive folders (batches/, runs/) exist in the storage bucket.
//   - Archive: Finds batch manifests and run reports whose batch or run no longer exists.
//   - Schema: Validates that the database tables carry every column of the gorm models.
//   - Ledger: Finds candidates without a record, applied candidates without history
//     and merge batches stuck in pending.
//
// # HTTP Endpoints
//
//   - GET /integrity : Runs all checks.
//   - GET /integrity/structure : Runs structure check (supports ?fix=true).
//   - GET /integrity/archive : Runs archive check (supports ?fix=true).
//   - GET /integrity/schema : Runs schema check.
//   - GET /integrity/ledger : Runs ledger check.
package integrity
