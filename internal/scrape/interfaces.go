package scrape

import (
	"context"
	"time"
)

// Fetcher loads a page in the driving browser and returns its snapshot.
// Fetch honors ctx for cancellation and enforces its own per-call timeout.
// A failed Fetch may still return a snapshot carrying the captured HTML
// (error pages) so callers can archive it.
// Reset discards broken browser state and provisions a fresh session; the
// pool calls it between retry attempts after a crash or timeout.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Snapshot, error)
	Reset(ctx context.Context) error
}

// Extractor parses a snapshot into a product record. Implementations are
// pure: equal snapshots yield equal records.
type Extractor interface {
	Extract(snap Snapshot) (Product, error)
}

// Sink delivers a finalized run result to durable output.
type Sink interface {
	Deliver(ctx context.Context, result RunResult) (SinkReport, error)
}

// RetryPolicy decides whether a failed fetch attempt goes around again.
// attempt is the 1-based index of the attempt that just failed.
type RetryPolicy interface {
	ShouldRetry(kind ErrorKind, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Clock returns the current time (swappable for tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
