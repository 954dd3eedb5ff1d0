package scrape

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ControllerConfig controls run-level behavior.
type ControllerConfig struct {
	// Deadline bounds the whole run; zero means no global deadline.
	Deadline time.Duration
	// DeliverTimeout bounds sink delivery after the run finishes. Delivery
	// runs detached from the run context so a deadline expiry still leaves
	// a complete JSON artifact behind.
	DeliverTimeout time.Duration
}

// Controller owns one scraping run end to end: it assigns the run ID,
// drives the pool to completion, finalizes the aggregate, and hands the
// result to the sink.
type Controller struct {
	pool   *Pool
	sink   Sink
	ids    IDGenerator
	clock  Clock
	cfg    ControllerConfig
	logger *zap.Logger
}

// NewController constructs a Controller.
func NewController(pool *Pool, sink Sink, ids IDGenerator, clock Clock, cfg ControllerConfig, logger *zap.Logger) *Controller {
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		pool:   pool,
		sink:   sink,
		ids:    ids,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Run scrapes urls and delivers the aggregate. The returned error reports
// run-level faults only (ID generation, loss of the JSON artifact); per-task
// failures and API rejections are data in the result and report.
func (c *Controller) Run(ctx context.Context, category string, urls []string) (RunResult, SinkReport, error) {
	runID, err := c.ids.NewID()
	if err != nil {
		return RunResult{}, SinkReport{}, fmt.Errorf("generate run id: %w", err)
	}
	return c.RunWithID(ctx, runID, category, urls)
}

// RunWithID is Run with a caller-supplied run ID, for callers that must
// announce the ID before the run completes.
func (c *Controller) RunWithID(ctx context.Context, runID, category string, urls []string) (RunResult, SinkReport, error) {
	tasks := Tasks(urls)
	started := c.clock.Now()

	runCtx := ctx
	var cancel context.CancelFunc = func() {}
	if c.cfg.Deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.Deadline)
	}
	defer cancel()

	c.logger.Info("run started",
		zap.String("run_id", runID),
		zap.String("category", category),
		zap.Int("tasks", len(tasks)),
	)

	agg := NewAggregator(len(tasks))
	c.pool.Run(runCtx, tasks, agg)

	result := agg.Finalize()
	result.RunID = runID
	result.Category = category
	result.Started = started
	result.Finished = c.clock.Now()

	deliverCtx, deliverCancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.DeliverTimeout)
	defer deliverCancel()
	report, err := c.sink.Deliver(deliverCtx, result)
	if err != nil {
		c.logger.Error("sink delivery failed", zap.String("run_id", runID), zap.Error(err))
		return result, report, fmt.Errorf("deliver run %s: %w", runID, err)
	}

	c.logger.Info("run finished",
		zap.String("run_id", runID),
		zap.Int("succeeded", result.Counts.Succeeded),
		zap.Int("failed", result.Counts.Failed),
		zap.Bool("json_written", report.JSONWritten),
		zap.Bool("api_accepted", report.APIAccepted),
		zap.Duration("took", result.Finished.Sub(result.Started)),
	)
	return result, report, nil
}
