package errs

import "errors"

var (
	ErrInvalidFieldType    = errors.New("invalid field type")
	ErrUnknownRecord       = errors.New("unknown record")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrStaleRollback       = errors.New("stale rollback")
	ErrPartialBatchFailure = errors.New("partial batch failure")

	// Configuration-level errors abort an audit run outright.
	ErrMalformedPolicy = errors.New("malformed policy")

	ErrUnknownCandidate = errors.New("unknown candidate")
	ErrUnknownBatch     = errors.New("unknown batch")
	ErrUnknownRun       = errors.New("unknown audit run")
	ErrUnknownJob       = errors.New("unknown job")
)

// IsConfiguration reports whether err is a configuration-level error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrMalformedPolicy)
}

// IsNotFound reports whether err denotes a missing entity of any kind.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownRecord) ||
		errors.Is(err, ErrUnknownCandidate) ||
		errors.Is(err, ErrUnknownBatch) ||
		errors.Is(err, ErrUnknownRun) ||
		errors.Is(err, ErrUnknownJob)
}
