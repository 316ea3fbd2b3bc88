// Package metrics exposes Prometheus instruments for reconciliation, resolution,
// merge batches and jobs. All methods are safe on a nil *Metrics so callers and
// tests may run without a registry.
package metrics
