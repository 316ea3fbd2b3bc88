// Package utils provides loosely typed conversion helpers.
//
// Observations and query parameters arrive as JSON numbers, strings or
// booleans depending on the source; these helpers normalize them before
// they are typed against the field schema.
package utils
