package scrape

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies task failures for reporting and retry decisions.
type ErrorKind string

// Failure classes recorded in outcomes.
const (
	KindTimeout          ErrorKind = "timeout"
	KindNavigationFailed ErrorKind = "navigation_failed"
	KindBrowserCrashed   ErrorKind = "browser_crashed"
	KindMalformedPage    ErrorKind = "malformed_page"
	KindCancelled        ErrorKind = "cancelled"
	KindSinkWriteFailed  ErrorKind = "sink_write_failed"
	KindSinkAPIRejected  ErrorKind = "sink_api_rejected"
	KindUnknown          ErrorKind = "unknown"
)

// Transient reports whether a failure of this kind is expected to resolve on
// a retry with a fresh browser session. Navigation failures and malformed
// pages are definitive and never retried.
func (k ErrorKind) Transient() bool {
	return k == KindTimeout || k == KindBrowserCrashed
}

// FetchError describes a failed page load.
type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

// NewFetchError wraps err as a fetch failure of the given kind.
func NewFetchError(kind ErrorKind, url string, err error) *FetchError {
	return &FetchError{Kind: kind, URL: url, Err: err}
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ExtractionError reports a page whose structure is not recognizable as a
// product page. Missing individual fields never raise it.
type ExtractionError struct {
	URL    string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.URL, e.Reason)
}

// SinkError reports a delivery failure after the pipeline itself finished.
type SinkError struct {
	Kind ErrorKind
	Err  error
}

// NewSinkError wraps err as a delivery failure of the given kind.
func NewSinkError(kind ErrorKind, err error) *SinkError {
	return &SinkError{Kind: kind, Err: err}
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink: %s: %v", e.Kind, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// Classify maps a fetch, extraction or delivery error onto its failure
// kind. Errors the pipeline does not recognize come back as KindUnknown.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	var extractErr *ExtractionError
	if errors.As(err, &extractErr) {
		return KindMalformedPage
	}
	var sinkErr *SinkError
	if errors.As(err, &sinkErr) {
		return sinkErr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindUnknown
}
