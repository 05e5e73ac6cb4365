package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures that are recorded rather than propagated.
type ErrorKind string

const (
	ErrProviderUnavailable ErrorKind = "provider_unavailable"
	ErrExtractionFailed    ErrorKind = "extraction_failed"
	ErrEvaluationMalformed ErrorKind = "evaluation_malformed"
	ErrEvaluationFailed    ErrorKind = "evaluation_failed"
	ErrCacheIOFailure      ErrorKind = "cache_io_failure"
	ErrRunCancelled        ErrorKind = "run_cancelled"
)

// ItemError ties a failure kind to the URL or provider that produced it.
type ItemError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *ItemError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.URL, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// NewItemError wraps err with a kind and subject URL.
func NewItemError(kind ErrorKind, url string, err error) *ItemError {
	return &ItemError{Kind: kind, URL: url, Err: err}
}

// KindOf extracts the ErrorKind from err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var itemErr *ItemError
	if errors.As(err, &itemErr) {
		return itemErr.Kind
	}
	return ""
}

// ItemFailure is a recorded, non-fatal failure of one candidate or adapter.
type ItemFailure struct {
	URL       string    `json:"url,omitempty"`
	SourceTag string    `json:"source,omitempty"`
	Kind      ErrorKind `json:"kind"`
	Reason    string    `json:"reason"`
}
