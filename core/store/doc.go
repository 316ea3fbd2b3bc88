// Package store persists the reconciliation models through gorm.
//
// A Store wraps a *gorm.DB. WithinTx runs a function against a Store bound to one
// transaction; code running inside the function must only use the Store it was
// given. Not-found lookups are reported with the errs taxonomy.
package store
