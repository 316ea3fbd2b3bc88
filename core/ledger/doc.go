// Package ledger owns the candidate lifecycle.
//
// Every status change goes through Transition, which checks the per-kind transition
// table, writes the new status conditionally on the old one and appends a
// ResolutionEvent. Discrepancies move pending -> accepted | rejected | ignored and
// accepted -> applied; enrichments move pending -> provisional -> approved -> applied
// (or rejected). Applied candidates of either kind become superseded when a newer,
// different observation arrives.
//
// Resolve applies a reviewer decision. Only pending and provisional candidates accept
// decisions; resolving a candidate in any other state returns it unchanged so retries
// are harmless.
package ledger
