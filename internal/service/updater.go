package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/okharin/mv-parser/internal/status"
)

// SitemapUpdater rebuilds the category link files from the sitemap.
// *urlsource.Updater is the production implementation.
type SitemapUpdater interface {
	Update(ctx context.Context) (map[string]int, error)
}

// URLUpdater executes sitemap refreshes in the background, one at a time.
type URLUpdater struct {
	updater SitemapUpdater
	tracker *status.Tracker
	logger  *zap.Logger

	parent context.Context
	gate   jobGate
}

// NewURLUpdater constructs the URL updater service. Refreshes descend from
// parent, so cancelling parent aborts the active refresh.
func NewURLUpdater(parent context.Context, updater SitemapUpdater, tracker *status.Tracker, logger *zap.Logger) *URLUpdater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &URLUpdater{
		updater: updater,
		tracker: tracker,
		logger:  logger,
		parent:  parent,
	}
}

// Start begins a background sitemap refresh. Reports ErrBusy while one is
// active.
func (u *URLUpdater) Start() error {
	ctx, err := u.gate.begin(u.parent)
	if err != nil {
		return err
	}

	u.tracker.Start("", 0)
	u.logger.Info("url update accepted")

	go u.execute(ctx)
	return nil
}

func (u *URLUpdater) execute(ctx context.Context) {
	defer u.gate.finish()

	counts, err := u.updater.Update(ctx)
	if err != nil {
		u.tracker.Fail(err)
		u.logger.Error("url update failed", zap.Error(err))
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	u.tracker.Heartbeat(total, 0)
	u.tracker.Complete()
	u.logger.Info("url update finished",
		zap.Int("categories", len(counts)),
		zap.Int("links", total),
	)
}

// Stop aborts the active refresh. An aborted refresh ends in the failed
// state; partially rewritten link files are not rolled back. Reports
// ErrNotRunning when idle.
func (u *URLUpdater) Stop() error {
	if err := u.gate.stop(); err != nil {
		return err
	}
	u.tracker.Stopping()
	u.logger.Info("url update stopping")
	return nil
}

// Busy reports whether a refresh is active.
func (u *URLUpdater) Busy() bool { return u.gate.busy() }

// Wait blocks until the active refresh (if any) finishes or ctx expires.
func (u *URLUpdater) Wait(ctx context.Context) error { return u.gate.wait(ctx) }
