package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PoolConfig controls Pool behavior.
type PoolConfig struct {
	// Workers is the number of concurrent workers. The pool never runs more
	// simultaneous fetches than this.
	Workers int
	// OnOutcome, when set, observes every recorded outcome. It runs on
	// worker goroutines and must be safe for concurrent use.
	OnOutcome func(Outcome)
	// OnFailureHTML, when set, receives the captured page HTML for tasks
	// that fail after a snapshot was taken. It runs on worker goroutines
	// and must be safe for concurrent use.
	OnFailureHTML func(task Task, html string)
}

// Pool executes fetch and extract over a task list with a fixed number of
// workers pulling from a shared FIFO queue.
type Pool struct {
	fetcher       Fetcher
	extractor     Extractor
	retry         RetryPolicy
	workers       int
	onOutcome     func(Outcome)
	onFailureHTML func(task Task, html string)
	logger        *zap.Logger
}

// NewPool constructs a Pool. A nil retry policy gets the exponential
// defaults; a nil logger is replaced with a no-op one.
func NewPool(fetcher Fetcher, extractor Extractor, retry RetryPolicy, cfg PoolConfig, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if retry == nil {
		retry = NewExponentialRetryPolicy(3, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		fetcher:       fetcher,
		extractor:     extractor,
		retry:         retry,
		workers:       cfg.Workers,
		onOutcome:     cfg.OnOutcome,
		onFailureHTML: cfg.OnFailureHTML,
		logger:        logger,
	}
}

// Run processes every task and records exactly one outcome apiece on agg.
// It returns only once all tasks are accounted for; after cancellation the
// tasks that never started are recorded as cancelled rather than dropped.
func (p *Pool) Run(ctx context.Context, tasks []Task, agg *Aggregator) {
	queue := make(chan Task)
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.runWorker(ctx, id, queue, agg)
		}(i)
	}
	p.feed(ctx, tasks, queue, agg)
	wg.Wait()
}

func (p *Pool) feed(ctx context.Context, tasks []Task, queue chan<- Task, agg *Aggregator) {
	defer close(queue)
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			p.cancelRemaining(tasks[i:], agg, err)
			return
		}
		select {
		case queue <- task:
		case <-ctx.Done():
			p.cancelRemaining(tasks[i:], agg, ctx.Err())
			return
		}
	}
}

func (p *Pool) cancelRemaining(tasks []Task, agg *Aggregator, cause error) {
	for _, task := range tasks {
		p.record(agg, FailureOutcome(task, KindCancelled, fmt.Sprintf("not started: %v", cause)))
	}
}

func (p *Pool) record(agg *Aggregator, outcome Outcome) {
	agg.Record(outcome)
	if p.onOutcome != nil {
		p.onOutcome(outcome)
	}
}

// captureFailure hands the failed page's HTML to the configured hook. Fetch
// errors usually carry no HTML; extraction failures always do.
func (p *Pool) captureFailure(task Task, html string) {
	if p.onFailureHTML == nil || html == "" {
		return
	}
	p.onFailureHTML(task, html)
}

func (p *Pool) runWorker(ctx context.Context, id int, queue <-chan Task, agg *Aggregator) {
	for task := range queue {
		p.record(agg, p.process(ctx, id, task))
	}
}

// process runs the fetch-extract round trips for one task. A panic anywhere
// in the round trip is converted into an unknown-failure outcome so one bad
// page cannot take the worker down with it.
func (p *Pool) process(ctx context.Context, workerID int, task Task) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task processing panicked",
				zap.Int("worker", workerID),
				zap.Int("task_id", task.ID),
				zap.String("url", task.URL),
				zap.Any("panic", r),
			)
			outcome = FailureOutcome(task, KindUnknown, fmt.Sprintf("panic: %v", r))
		}
	}()

	attempt := 1
	for {
		if err := ctx.Err(); err != nil {
			return FailureOutcome(task, KindCancelled, err.Error())
		}
		snap, err := p.fetcher.Fetch(ctx, task.URL)
		if err == nil {
			record, extractErr := p.extractor.Extract(snap)
			if extractErr != nil {
				p.captureFailure(task, snap.HTML)
				return FailureOutcome(task, Classify(extractErr), extractErr.Error())
			}
			return SuccessOutcome(task, record)
		}
		kind := Classify(err)
		if ctx.Err() != nil {
			return FailureOutcome(task, KindCancelled, err.Error())
		}
		if !p.retry.ShouldRetry(kind, attempt) {
			p.captureFailure(task, snap.HTML)
			return FailureOutcome(task, kind, err.Error())
		}
		p.logger.Warn("fetch failed, retrying",
			zap.Int("task_id", task.ID),
			zap.String("url", task.URL),
			zap.String("kind", string(kind)),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if resetErr := p.fetcher.Reset(ctx); resetErr != nil {
			p.logger.Error("fetcher reset failed",
				zap.Int("task_id", task.ID),
				zap.Error(resetErr),
			)
		}
		if !sleepCtx(ctx, p.retry.Backoff(attempt)) {
			return FailureOutcome(task, KindCancelled, ctx.Err().Error())
		}
		attempt++
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
