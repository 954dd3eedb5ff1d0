package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okharin/mv-parser/internal/scrape"
)

func TestEventOf(t *testing.T) {
	t.Parallel()

	started := time.Unix(1700000000, 0).UTC()
	result := scrape.RunResult{
		RunID:    "run-1",
		Category: "smartfon",
		Started:  started,
		Finished: started.Add(90 * time.Second),
		Counts:   scrape.RunCounts{Succeeded: 7, Failed: 2},
	}

	got := EventOf(result)

	require.Equal(t, RunEvent{
		RunID:     "run-1",
		Category:  "smartfon",
		Succeeded: 7,
		Failed:    2,
		Duration:  90 * time.Second,
	}, got)
}

func TestNoopPublish(t *testing.T) {
	t.Parallel()

	require.NoError(t, Noop{}.Publish(context.Background(), RunEvent{RunID: "run-1"}))
}
