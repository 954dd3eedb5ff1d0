package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/okharin/mv-parser/internal/status"
)

func TestURLUpdaterCompletes(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(t, "url-updater")
	upd := &fakeUpdater{counts: map[string]int{"smartfon": 2, "televizor": 3}}
	u := NewURLUpdater(context.Background(), upd, tracker, zap.NewNop())

	require.NoError(t, u.Start())
	waitIdle(t, u)

	snap := tracker.Snapshot()
	require.Equal(t, status.StateCompleted, snap.State)
	require.Equal(t, 5, snap.Processed)
	require.False(t, u.Busy())
}

func TestURLUpdaterStartWhileRunningReportsBusy(t *testing.T) {
	t.Parallel()

	upd := newBlockingUpdater()
	tracker := newTestTracker(t, "url-updater")
	u := NewURLUpdater(context.Background(), upd, tracker, zap.NewNop())

	require.NoError(t, u.Start())
	<-upd.started
	require.True(t, u.Busy())
	require.ErrorIs(t, u.Start(), ErrBusy)

	close(upd.release)
	waitIdle(t, u)

	require.NoError(t, u.Start())
	waitIdle(t, u)
}

func TestURLUpdaterStopAbortsRefresh(t *testing.T) {
	t.Parallel()

	upd := newBlockingUpdater()
	tracker := newTestTracker(t, "url-updater")
	u := NewURLUpdater(context.Background(), upd, tracker, zap.NewNop())

	require.ErrorIs(t, u.Stop(), ErrNotRunning)

	require.NoError(t, u.Start())
	<-upd.started
	require.NoError(t, u.Stop())
	require.Equal(t, status.StateStopping, tracker.Snapshot().State)

	close(upd.release)
	waitIdle(t, u)

	snap := tracker.Snapshot()
	require.Equal(t, status.StateFailed, snap.State)
	require.Contains(t, snap.LastError, "context canceled")
}

func TestURLUpdaterFailureRecordsError(t *testing.T) {
	t.Parallel()

	tracker := newTestTracker(t, "url-updater")
	u := NewURLUpdater(context.Background(), &fakeUpdater{err: errors.New("sitemap unreachable")}, tracker, zap.NewNop())

	require.NoError(t, u.Start())
	waitIdle(t, u)

	snap := tracker.Snapshot()
	require.Equal(t, status.StateFailed, snap.State)
	require.Equal(t, "sitemap unreachable", snap.LastError)
}

type fakeUpdater struct {
	counts map[string]int
	err    error
}

func (u *fakeUpdater) Update(context.Context) (map[string]int, error) {
	if u.err != nil {
		return nil, u.err
	}
	return u.counts, nil
}

// blockingUpdater parks until release is closed, then reports the context
// error if the refresh was cancelled meanwhile.
type blockingUpdater struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	ctxErr  error
}

func newBlockingUpdater() *blockingUpdater {
	return &blockingUpdater{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (u *blockingUpdater) Update(ctx context.Context) (map[string]int, error) {
	u.started <- struct{}{}
	<-u.release
	u.mu.Lock()
	u.ctxErr = ctx.Err()
	u.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return map[string]int{"smartfon": 1}, nil
}
