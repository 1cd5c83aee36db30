package chatbot

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline.
var (
	// ErrNotFound indicates a referenced chatbot or conversation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied indicates the principal does not own the referenced resource.
	ErrAccessDenied = errors.New("access denied")

	// ErrUnextractable indicates an uploaded document produced no usable text.
	// Distinct from a generic server error so the upload UI can tell the
	// user the file itself is the problem.
	ErrUnextractable = errors.New("no text could be extracted from document")
)

// ValidationError describes a rejected request input. The message is
// specific and actionable; missing or invalid values are never silently
// defaulted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProviderError wraps a failure from an upstream embedding or completion
// service. Calls that would corrupt the answer (query embedding,
// completion setup) propagate it; mid-stream and per-chunk ingestion
// failures degrade instead.
type ProviderError struct {
	Op  string // "embed", "complete", "rerank"
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
