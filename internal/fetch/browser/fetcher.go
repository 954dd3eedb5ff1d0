// Package browser implements the page fetcher on headless Chrome.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/okharin/mv-parser/internal/scrape"
)

// Config controls the browser fetcher.
type Config struct {
	// Sessions is the number of pooled browser sessions. Size it to the
	// worker count: one session per worker, or workers serialize on the
	// pool.
	Sessions int
	// Timeout bounds a single page load.
	Timeout time.Duration
	// MinDelay and MaxDelay bound the politeness wait before each
	// navigation.
	MinDelay time.Duration
	MaxDelay time.Duration
	// UserAgents are rotated across fetches when non-empty.
	UserAgents []string
	Headless   bool
}

// Fetcher implements scrape.Fetcher on a pool of long-lived Chrome
// sessions. Each Fetch opens a fresh tab in a pooled session and closes it
// before returning, so a timed-out load never leaves a tab behind.
type Fetcher struct {
	cfg    Config
	logger *zap.Logger

	allocator   context.Context
	allocCancel context.CancelFunc

	// slots carry sessions between workers; a nil session inside a slot is
	// re-provisioned lazily on acquire, which keeps the pool at fixed size
	// even when Chrome refuses to start during a reset.
	slots chan *slot

	mu     sync.Mutex
	closed bool
}

type slot struct {
	session *session
}

type session struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// New starts the allocator and eagerly provisions every session so a broken
// Chrome install fails the service at startup instead of mid-run.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.Sessions <= 0 {
		cfg.Sessions = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	f := &Fetcher{
		cfg:         cfg,
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		slots:       make(chan *slot, cfg.Sessions),
	}
	for i := 0; i < cfg.Sessions; i++ {
		s, err := f.newSession()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("provision browser session %d: %w", i, err)
		}
		f.slots <- &slot{session: s}
	}
	return f, nil
}

func (f *Fetcher) newSession() (*session, error) {
	ctx, cancel := chromedp.NewContext(f.allocator)
	// The browser process starts on the first Run; do it now so failures
	// surface here.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return &session{ctx: ctx, cancel: cancel}, nil
}

// Close tears down all idle sessions and the allocator. Sessions still held
// by in-flight fetches die with the allocator.
func (f *Fetcher) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	for {
		select {
		case sl := <-f.slots:
			if sl.session != nil {
				sl.session.cancel()
			}
			continue
		default:
		}
		break
	}
	f.allocCancel()
}

// Fetch navigates a pooled session to pageURL and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (scrape.Snapshot, error) {
	sl, err := f.acquire(ctx)
	if err != nil {
		return scrape.Snapshot{}, err
	}
	defer f.release(sl)

	if err := f.politenessDelay(ctx); err != nil {
		return scrape.Snapshot{}, err
	}

	tabCtx, tabCancel := chromedp.NewContext(sl.session.ctx)
	defer tabCancel()
	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, f.cfg.Timeout)
	defer timeoutCancel()

	// chromedp contexts descend from the session, not the caller, so run
	// cancellation is forwarded by hand.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			tabCancel()
		case <-stop:
		}
	}()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	var html, title string
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return scrape.Snapshot{}, f.classifyRunError(ctx, tabCtx, pageURL, err)
	}

	status := meta.statusOr(200)
	snap := scrape.Snapshot{URL: pageURL, HTML: html, StatusCode: status, Title: title}
	if status >= 400 {
		// The snapshot still carries the rendered DOM so error pages can be
		// archived.
		return snap, scrape.NewFetchError(scrape.KindNavigationFailed, pageURL, fmt.Errorf("status %d", status))
	}
	return snap, nil
}

// Reset drops every idle session; replacements are provisioned lazily on
// the next acquire. The worker pool calls this between retry attempts when
// a session timed out or crashed.
func (f *Fetcher) Reset(context.Context) error {
	n := 0
	for {
		select {
		case sl := <-f.slots:
			if sl.session != nil {
				sl.session.cancel()
			}
			n++
			continue
		default:
		}
		break
	}
	for i := 0; i < n; i++ {
		f.slots <- &slot{}
	}
	f.logger.Info("browser sessions reset", zap.Int("recycled", n))
	return nil
}

func (f *Fetcher) acquire(ctx context.Context) (*slot, error) {
	var sl *slot
	select {
	case sl = <-f.slots:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for browser session: %w", ctx.Err())
	}
	if sl.session != nil && sl.session.ctx.Err() == nil {
		return sl, nil
	}
	if sl.session != nil {
		sl.session.cancel()
		sl.session = nil
	}
	s, err := f.newSession()
	if err != nil {
		f.slots <- sl
		return nil, scrape.NewFetchError(scrape.KindBrowserCrashed, "", fmt.Errorf("provision session: %w", err))
	}
	sl.session = s
	return sl, nil
}

func (f *Fetcher) release(sl *slot) {
	f.slots <- sl
}

func (f *Fetcher) politenessDelay(ctx context.Context) error {
	delay := f.cfg.MinDelay
	if f.cfg.MaxDelay > delay {
		delay += time.Duration(rand.Int63n(int64(f.cfg.MaxDelay - delay + 1)))
	}
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("politeness wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if ua := f.userAgent(); ua != "" {
			if err := emulation.SetUserAgentOverride(ua).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) userAgent() string {
	if len(f.cfg.UserAgents) == 0 {
		return ""
	}
	return f.cfg.UserAgents[rand.Intn(len(f.cfg.UserAgents))]
}

func (f *Fetcher) classifyRunError(ctx, tabCtx context.Context, pageURL string, err error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("fetch %s: %w", pageURL, ctx.Err())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(tabCtx.Err(), context.DeadlineExceeded):
		return scrape.NewFetchError(scrape.KindTimeout, pageURL, err)
	case isNavigationError(err):
		return scrape.NewFetchError(scrape.KindNavigationFailed, pageURL, err)
	default:
		return scrape.NewFetchError(scrape.KindBrowserCrashed, pageURL, err)
	}
}

// isNavigationError recognizes Chrome network-layer failures (DNS, refused
// connections, aborted loads) that no amount of retrying will fix.
func isNavigationError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "net::ERR")
}

type responseMeta struct {
	mu     sync.Mutex
	status int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.mu.Unlock()
}

func (m *responseMeta) statusOr(fallback int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == 0 {
		return fallback
	}
	return m.status
}
