package scrape

import (
	"fmt"
	"sort"
	"sync"
)

// Aggregator collects exactly one outcome per task across concurrent
// workers. It is the only structure shared between workers during a run;
// every write goes through its mutex.
type Aggregator struct {
	mu       sync.Mutex
	expected int
	seen     map[int]struct{}
	outcomes []Outcome
	final    bool
}

// NewAggregator creates an aggregator expecting one outcome for each of the
// expected tasks.
func NewAggregator(expected int) *Aggregator {
	return &Aggregator{
		expected: expected,
		seen:     make(map[int]struct{}, expected),
		outcomes: make([]Outcome, 0, expected),
	}
}

// Record stores the outcome for its task. A second outcome for the same task
// ID, or a record after Finalize, means the pipeline double-reported and is
// an internal consistency failure, so Record panics rather than silently
// overwriting.
func (a *Aggregator) Record(outcome Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.final {
		panic(fmt.Sprintf("scrape: outcome for task %d recorded after finalize", outcome.Task.ID))
	}
	if _, dup := a.seen[outcome.Task.ID]; dup {
		panic(fmt.Sprintf("scrape: duplicate outcome for task %d", outcome.Task.ID))
	}
	a.seen[outcome.Task.ID] = struct{}{}
	a.outcomes = append(a.outcomes, outcome)
}

// Len returns the number of outcomes recorded so far.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.outcomes)
}

// Complete reports whether every expected task has an outcome.
func (a *Aggregator) Complete() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.outcomes) == a.expected
}

// Finalize seals the aggregator and returns the run result with outcomes
// ordered by task ID, regardless of the order workers finished in.
func (a *Aggregator) Finalize() RunResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.final = true
	sort.Slice(a.outcomes, func(i, j int) bool {
		return a.outcomes[i].Task.ID < a.outcomes[j].Task.ID
	})
	result := RunResult{Outcomes: a.outcomes}
	for _, o := range a.outcomes {
		if o.Success() {
			result.Counts.Succeeded++
		} else {
			result.Counts.Failed++
		}
	}
	return result
}
