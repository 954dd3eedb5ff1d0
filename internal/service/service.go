// Package service coordinates the background jobs behind the HTTP API:
// scraping runs and sitemap refreshes. Each job is single-flight; starting
// one that is already running reports ErrBusy.
package service

import (
	"context"
	"errors"
	"sync"
)

// ErrBusy signals that the job is already running.
var ErrBusy = errors.New("job already running")

// ErrNotRunning signals a stop request for a job that is not running.
var ErrNotRunning = errors.New("job is not running")

// jobGate serializes one background job: at most one holder at a time,
// with a cancel handle for graceful stops.
type jobGate struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	running bool
	cancel  context.CancelFunc
}

// begin claims the gate and returns the job context, or ErrBusy. Every
// successful begin must be paired with finish.
func (g *jobGate) begin(parent context.Context) (context.Context, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(parent)
	g.running = true
	g.cancel = cancel
	g.wg.Add(1)
	return ctx, nil
}

// stop cancels the held job context, or reports ErrNotRunning. The gate
// stays claimed until the job itself calls finish.
func (g *jobGate) stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return ErrNotRunning
	}
	g.cancel()
	return nil
}

// finish releases the gate and the job context.
func (g *jobGate) finish() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.running {
		return
	}
	g.cancel()
	g.cancel = nil
	g.running = false
	g.wg.Done()
}

// busy reports whether a job currently holds the gate.
func (g *jobGate) busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// wait blocks until the active job (if any) finishes or ctx expires. Meant
// for shutdown, after new starts have stopped arriving.
func (g *jobGate) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
