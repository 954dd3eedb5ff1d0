// Package archive abstracts blob storage for captured page snapshots.
// Provider implementations live in subpackages so the binary can swap
// backends without touching callers.
package archive

import (
	"context"
	"fmt"
	"io"
)

// BlobStore persists one artifact and reports where it landed.
type BlobStore interface {
	// Put writes the content under key and returns the provider URI.
	Put(ctx context.Context, key string, contentType string, r io.Reader) (string, error)
}

// FailureKey names the archived HTML captured for a failed task.
func FailureKey(runID string, taskID int) string {
	return fmt.Sprintf("%s/task-%d.html", runID, taskID)
}

// Noop discards artifacts. It stands in when archiving is disabled.
type Noop struct{}

var _ BlobStore = Noop{}

// Put reports an empty URI without storing anything.
func (Noop) Put(context.Context, string, string, io.Reader) (string, error) {
	return "", nil
}
