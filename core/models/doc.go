// Package models defines the persisted records of the reconciliation engine:
// catalog records, source observations, candidates (discrepancies and enrichments),
// resolution events, audit runs, merge batches, field history and jobs.
//
// Field values are stored as JSON-serialized compare.Value so the presence
// tri-state survives a round trip through the database.
package models
