// Package trust decides which classified differences may be applied without review.
//
// A Policy is configuration data: a per-level auto-accept matrix of difference types,
// per-capability confidence thresholds (fill for empty fields, update for populated
// ones) and quality flags that block automation. Policies load from YAML:
//
//	auto_accept:
//	  authoritative: [equivalent, format_diff, within_tolerance, partial, overlapping, adjacent, missing]
//	  high: [equivalent, format_diff, within_tolerance, missing]
//	thresholds:
//	  fill: 0.8
//	  update: 0.95
//	blocking_flags: [low_resolution, ocr]
//
// Two rules hold regardless of configuration: untrusted observations are never
// auto-acceptable and an authoritative exact match always is.
package trust
