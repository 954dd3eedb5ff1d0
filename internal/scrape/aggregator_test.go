package scrape

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregator_Finalize_OrdersByTaskID(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(4)
	agg.Record(FailureOutcome(Task{ID: 2, URL: "u2"}, KindTimeout, "slow"))
	agg.Record(SuccessOutcome(Task{ID: 0, URL: "u0"}, Product{URL: "u0", Name: "p0"}))
	agg.Record(SuccessOutcome(Task{ID: 3, URL: "u3"}, Product{URL: "u3", Name: "p3"}))
	agg.Record(FailureOutcome(Task{ID: 1, URL: "u1"}, KindNavigationFailed, "404"))

	result := agg.Finalize()
	require.Len(t, result.Outcomes, 4)
	for i, o := range result.Outcomes {
		require.Equal(t, i, o.Task.ID)
	}
	require.Equal(t, RunCounts{Succeeded: 2, Failed: 2}, result.Counts)
}

func TestAggregator_Record_ConcurrentWritersLoseNothing(t *testing.T) {
	t.Parallel()

	const n = 200
	agg := NewAggregator(n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			agg.Record(SuccessOutcome(Task{ID: id}, Product{Name: "p"}))
		}(i)
	}
	wg.Wait()

	require.True(t, agg.Complete())
	result := agg.Finalize()
	require.Len(t, result.Outcomes, n)
	require.Equal(t, n, result.Counts.Succeeded)
	for i, o := range result.Outcomes {
		require.Equal(t, i, o.Task.ID)
	}
}

func TestAggregator_Record_DuplicateTaskPanics(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(2)
	agg.Record(SuccessOutcome(Task{ID: 0}, Product{}))
	require.Panics(t, func() {
		agg.Record(FailureOutcome(Task{ID: 0}, KindTimeout, "again"))
	})
}

func TestAggregator_Record_AfterFinalizePanics(t *testing.T) {
	t.Parallel()

	agg := NewAggregator(1)
	agg.Record(SuccessOutcome(Task{ID: 0}, Product{}))
	agg.Finalize()
	require.Panics(t, func() {
		agg.Record(SuccessOutcome(Task{ID: 1}, Product{}))
	})
}
