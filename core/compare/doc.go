// Package compare classifies the difference between a record's current field value
// and a value asserted by an external source.
//
// Values are a tagged variant (Value) keyed by FieldType with an explicit presence
// tri-state: Present, Empty or Unknown. A Descriptor tells the comparator how a field
// is compared (type, numeric tolerance, circa delta, similarity threshold, synonyms)
// and a Schema maps field names to descriptors.
//
// # Classification
//
//   - numeric: exact, within_tolerance, mismatch
//   - year: exact, overlapping, adjacent, mismatch
//   - text / enum: exact, equivalent, format_diff, within_tolerance, partial, mismatch
//   - catalog_ref: decomposed into catalog, volume, number and suffix before comparing;
//     unparsable references are compared as opaque text
//   - any type: missing when either side is not present
//
// Compare fails with errs.ErrInvalidFieldType only for unknown descriptors. Absent
// values are a classified outcome, never an error.
//
// # Usage
//
//	schema := compare.DefaultSchema()
//	res, err := schema.Compare("grade", compare.Enum("VF"), compare.Enum("VF35"))
//	// res.Difference == compare.FormatDiff
package compare
