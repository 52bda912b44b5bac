package ai

import (
	"errors"
	"fmt"
)

// ErrProviderUnavailable marks failures of the provider call itself (network,
// auth, quota), as opposed to a response that came back but did not conform to
// the requested schema.
var ErrProviderUnavailable = errors.New("ai provider unavailable")

// ExtractionError reports that extraction produced no schema-conformant
// document. The raw provider message is preserved for operator diagnostics;
// no partially-typed object is ever returned alongside it.
type ExtractionError struct {
	Reason          string
	ProviderMessage string
}

func (e *ExtractionError) Error() string {
	if e.ProviderMessage == "" {
		return fmt.Sprintf("extraction failed: %s", e.Reason)
	}
	return fmt.Sprintf("extraction failed: %s: %s", e.Reason, e.ProviderMessage)
}

// ComparisonError reports that the comparative ranking call failed or returned
// an unusable result. Existing per-proposal scores are left untouched.
type ComparisonError struct {
	Reason string
	Err    error
}

func (e *ComparisonError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("comparison failed: %s", e.Reason)
	}
	return fmt.Sprintf("comparison failed: %s: %v", e.Reason, e.Err)
}

func (e *ComparisonError) Unwrap() error { return e.Err }
