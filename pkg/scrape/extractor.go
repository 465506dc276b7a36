package scrape

import "fmt"

// Extractor turns a raw detail payload into an output-ready record.
// Implementations live in pkg/extract; this package only needs the contract.
type Extractor interface {
	// Extract flattens one detail payload. A nil record with a non-nil
	// error marks the item failed; extraction never aborts the run.
	Extract(payload map[string]any) (Record, error)
}

// ExtractionError reports a payload that could not be flattened into a
// record, usually because a required field is absent or the wrong shape.
type ExtractionError struct {
	Field  string
	Reason string
}

func (e *ExtractionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("extract: field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("extract: %s", e.Reason)
}
