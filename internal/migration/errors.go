package migration

import "fmt"

// ResolutionError means an asset reference could not be mapped to a known
// drive. Recorded on the asset; never aborts the run.
type ResolutionError struct {
	Ref    string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %q: %s", e.Ref, e.Reason)
}

// ExtractionError is a per-record failure of the structured extraction path.
// It triggers the scrape fallback before the record is marked failed.
type ExtractionError struct {
	RecordID string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.RecordID, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ValidationError is a missing-precondition failure detected before any API
// call is made.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing %s: %s", e.Field, e.Detail)
}
