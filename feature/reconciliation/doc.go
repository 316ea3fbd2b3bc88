// Package reconciliation exposes the reconciliation engine over HTTP.
//
// It is a thin adapter: requests are validated with go-playground/validator,
// loosely typed values are typed against the field schema, and the work is
// delegated to core/reconcile, core/ledger, core/merge and core/audit.
//
// # Routes
//
//	PUT  /records/:id                  import a catalog record
//	GET  /records/:id                  read a record
//	GET  /records/:id/history          field history, oldest first
//	POST /observations                 ingest source observations
//	POST /audit/runs                   start an audit run
//	GET  /audit/runs/:id               run status and counters
//	GET  /audit/runs/:id/failures      records the run could not audit
//	POST /audit/runs/:id/cancel        cancel a queued or running run
//	GET  /discrepancies                list discrepancy candidates
//	GET  /enrichments                  list enrichment candidates
//	POST /candidates/:id/resolve       record a decision
//	GET  /candidates/:id/events        resolution trail
//	POST /merge/preview                dry-run a selection
//	POST /merge/commit                 commit a selection (optionally as a job)
//	GET  /merge/batches/:id            batch result
//	POST /merge/batches/:id/rollback   roll a batch back
//	GET  /jobs/:id                     asynchronous job status
//
// Errors map to status codes by kind: unknown entities are 404, invalid
// transitions and stale rollbacks are 409, a partially failed batch is 207 and
// malformed requests are 400.
package reconciliation
