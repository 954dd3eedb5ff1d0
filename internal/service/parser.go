package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/okharin/mv-parser/internal/events"
	"github.com/okharin/mv-parser/internal/metrics"
	"github.com/okharin/mv-parser/internal/scrape"
	"github.com/okharin/mv-parser/internal/status"
	"github.com/okharin/mv-parser/internal/store"
)

// Runner drives one scraping run to completion. *scrape.Controller is the
// production implementation.
type Runner interface {
	RunWithID(ctx context.Context, runID, category string, urls []string) (scrape.RunResult, scrape.SinkReport, error)
}

// LinkSource loads the product links of a category.
type LinkSource interface {
	Links(category string, limit int) ([]string, error)
}

// SeenStore remembers URLs that earlier runs already handled.
type SeenStore interface {
	Contains(url string) bool
	Add(urls ...string)
	Flush() error
}

// ParserConfig tunes the parser service.
type ParserConfig struct {
	// PersistTimeout bounds the post-run persistence steps (store, seen
	// URLs, events) so a stuck provider cannot pin the job forever.
	PersistTimeout time.Duration
}

// ParserDeps bundles the collaborators a Parser needs. Store and Events
// may be nil; no-op implementations are substituted.
type ParserDeps struct {
	Runner  Runner
	Source  LinkSource
	Seen    SeenStore
	Store   store.Store
	Events  events.Publisher
	Tracker *status.Tracker
	Monitor *Monitor
	IDs     scrape.IDGenerator
}

// Parser executes scraping runs in the background, one at a time.
type Parser struct {
	runner  Runner
	source  LinkSource
	seen    SeenStore
	store   store.Store
	events  events.Publisher
	tracker *status.Tracker
	monitor *Monitor
	ids     scrape.IDGenerator
	cfg     ParserConfig
	logger  *zap.Logger

	parent context.Context
	gate   jobGate
}

// NewParser constructs the parser service. Runs descend from parent, so
// cancelling parent winds down the active run.
func NewParser(parent context.Context, deps ParserDeps, cfg ParserConfig, logger *zap.Logger) *Parser {
	if deps.Store == nil {
		deps.Store = store.Noop{}
	}
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		runner:  deps.Runner,
		source:  deps.Source,
		seen:    deps.Seen,
		store:   deps.Store,
		events:  deps.Events,
		tracker: deps.Tracker,
		monitor: deps.Monitor,
		ids:     deps.IDs,
		cfg:     cfg,
		logger:  logger,
		parent:  parent,
	}
}

// Start begins a background run over the category's links and returns its
// run ID. force reprocesses links already marked seen; limit caps how many
// links are read from the category file (0 reads all). Reports ErrBusy
// while a run is active.
func (p *Parser) Start(category string, force bool, limit int) (string, error) {
	ctx, err := p.gate.begin(p.parent)
	if err != nil {
		return "", err
	}

	urls, err := p.loadLinks(category, force, limit)
	if err != nil {
		p.gate.finish()
		return "", err
	}
	runID, err := p.ids.NewID()
	if err != nil {
		p.gate.finish()
		return "", fmt.Errorf("generate run id: %w", err)
	}

	p.tracker.Start(category, len(urls))
	p.monitor.Begin(runID)
	p.logger.Info("parse run accepted",
		zap.String("run_id", runID),
		zap.String("category", category),
		zap.Int("urls", len(urls)),
		zap.Bool("force", force),
	)

	go p.execute(ctx, runID, category, urls)
	return runID, nil
}

// loadLinks reads the category links and drops already-seen URLs unless
// force is set. The limit applies before the seen filter, so a limited run
// walks the same prefix of the file every time.
func (p *Parser) loadLinks(category string, force bool, limit int) ([]string, error) {
	links, err := p.source.Links(category, limit)
	if err != nil {
		return nil, err
	}
	if force {
		return links, nil
	}
	fresh := make([]string, 0, len(links))
	for _, u := range links {
		if !p.seen.Contains(u) {
			fresh = append(fresh, u)
		}
	}
	return fresh, nil
}

func (p *Parser) execute(ctx context.Context, runID, category string, urls []string) {
	defer p.gate.finish()

	metrics.SetRunActive(true)
	defer metrics.SetRunActive(false)
	started := time.Now()

	result, report, err := p.runner.RunWithID(ctx, runID, category, urls)
	p.monitor.Flush()
	if err != nil {
		metrics.ObserveRun("failed", time.Since(started))
		p.tracker.Fail(err)
		p.logger.Error("parse run failed", zap.String("run_id", runID), zap.Error(err))
		return
	}

	p.persist(ctx, result)

	if report.JSONWritten && !report.APIAccepted {
		p.logger.Warn("run delivered with api rejections",
			zap.String("run_id", runID),
			zap.Int("rejected", report.Rejected),
		)
	}
	p.tracker.Complete()
	metrics.ObserveRun("completed", time.Since(started))
	p.logger.Info("parse run finished",
		zap.String("run_id", runID),
		zap.Int("succeeded", result.Counts.Succeeded),
		zap.Int("failed", result.Counts.Failed),
	)
}

// persist records the run in the configured providers. Every step is
// advisory: a store, seen-list, or event failure is logged and must not
// fail a run whose results were already delivered.
func (p *Parser) persist(ctx context.Context, result scrape.RunResult) {
	// A stopped run still persists what it collected, so the persistence
	// context survives the run context by a bounded grace period.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.PersistTimeout)
	defer cancel()

	if err := p.store.SaveRun(persistCtx, result); err != nil {
		p.logger.Error("save run", zap.String("run_id", result.RunID), zap.Error(err))
	} else if products, err := store.ProductsOf(result, p.ids); err != nil {
		p.logger.Error("build product records", zap.String("run_id", result.RunID), zap.Error(err))
	} else if len(products) > 0 {
		if err := p.store.SaveProducts(persistCtx, result.RunID, products); err != nil {
			p.logger.Error("save products", zap.String("run_id", result.RunID), zap.Error(err))
		}
	}

	for _, outcome := range result.Outcomes {
		if outcome.Success() {
			p.seen.Add(outcome.Task.URL)
		}
	}
	if err := p.seen.Flush(); err != nil {
		p.logger.Warn("flush seen urls", zap.Error(err))
	}

	if err := p.events.Publish(persistCtx, events.EventOf(result)); err != nil {
		p.logger.Warn("publish run event", zap.Error(err))
	}
}

// Stop asks the active run to wind down: queued tasks are recorded as
// cancelled, in-flight pages finish. Reports ErrNotRunning when idle.
func (p *Parser) Stop() error {
	if err := p.gate.stop(); err != nil {
		return err
	}
	p.tracker.Stopping()
	p.logger.Info("parse run stopping")
	return nil
}

// Busy reports whether a run is active.
func (p *Parser) Busy() bool { return p.gate.busy() }

// Wait blocks until the active run (if any) finishes or ctx expires.
func (p *Parser) Wait(ctx context.Context) error { return p.gate.wait(ctx) }
