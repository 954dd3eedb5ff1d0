// Package events publishes run lifecycle events. Provider implementations
// live in subpackages so the binary can swap backends without touching
// callers.
package events

import (
	"context"
	"time"

	"github.com/okharin/mv-parser/internal/scrape"
)

// RunEvent announces one finished run.
type RunEvent struct {
	RunID    string `json:"run_id"`
	Category string `json:"category,omitempty"`
	// Succeeded and Failed mirror the run counts.
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	// Duration is the wall-clock run time in nanoseconds.
	Duration time.Duration `json:"duration_ns"`
}

// EventOf builds the event for a finished run.
func EventOf(result scrape.RunResult) RunEvent {
	return RunEvent{
		RunID:     result.RunID,
		Category:  result.Category,
		Succeeded: result.Counts.Succeeded,
		Failed:    result.Counts.Failed,
		Duration:  result.Finished.Sub(result.Started),
	}
}

// Publisher emits run events. A publish failure must never fail the run that
// produced the event.
type Publisher interface {
	Publish(ctx context.Context, event RunEvent) error
}

// Noop drops events. It stands in when publishing is disabled.
type Noop struct{}

var _ Publisher = Noop{}

// Publish discards the event.
func (Noop) Publish(context.Context, RunEvent) error { return nil }
