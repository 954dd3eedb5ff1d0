// Package status persists the lifecycle of the background jobs so their
// state survives restarts and stays inspectable over the API.
package status

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/okharin/mv-parser/internal/fsutil"
	"github.com/okharin/mv-parser/internal/scrape"
)

// State is a job lifecycle phase.
type State string

// Supported job states.
const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Snapshot is the persisted view of one job.
type Snapshot struct {
	Job       string     `json:"job"`
	State     State      `json:"state"`
	Category  string     `json:"category,omitempty"`
	Total     int        `json:"total"`
	Processed int        `json:"processed"`
	Errors    int        `json:"errors"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Heartbeat *time.Time `json:"heartbeat,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Stalled reports whether a job that claims to be active stopped
// heartbeating. Used by the API to flag runs whose process died.
func (s Snapshot) Stalled(now time.Time, staleAfter time.Duration) bool {
	if s.State != StateRunning && s.State != StateStopping {
		return false
	}
	if staleAfter <= 0 || s.Heartbeat == nil {
		return false
	}
	return now.Sub(*s.Heartbeat) > staleAfter
}

// Tracker owns one job's snapshot and the file backing it. Persist failures
// are logged but never fail the job; the status file is advisory.
type Tracker struct {
	mu     sync.Mutex
	snap   Snapshot
	path   string
	clock  scrape.Clock
	logger *zap.Logger
}

// NewTracker loads or initializes the snapshot for job under dir. A
// snapshot left in an active state by a crashed process is kept as-is; its
// stale heartbeat makes the interruption visible until the next start.
func NewTracker(dir, job string, clock scrape.Clock, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		snap:   Snapshot{Job: job, State: StateIdle},
		path:   filepath.Join(dir, job+".json"),
		clock:  clock,
		logger: logger,
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		return t
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logger.Warn("status file unreadable, starting fresh",
			zap.String("path", t.path), zap.Error(err))
		return t
	}
	snap.Job = job
	if snap.State == "" {
		snap.State = StateIdle
	}
	t.snap = snap
	return t
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Start transitions the job to running and resets the run counters.
func (t *Tracker) Start(category string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.snap.State = StateRunning
	t.snap.Category = category
	t.snap.Total = total
	t.snap.Processed = 0
	t.snap.Errors = 0
	t.snap.StartedAt = &now
	t.snap.EndedAt = nil
	t.snap.LastError = ""
	t.persistLocked(now)
}

// Heartbeat records absolute progress counters and bumps the heartbeat.
func (t *Tracker) Heartbeat(processed, errCount int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Processed = processed
	t.snap.Errors = errCount
	t.persistLocked(t.now())
}

// Stopping marks a graceful stop request.
func (t *Tracker) Stopping() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.State = StateStopping
	t.persistLocked(t.now())
}

// Complete marks the job finished.
func (t *Tracker) Complete() {
	t.finish(StateCompleted, "")
}

// Fail marks the job failed and records the error.
func (t *Tracker) Fail(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	t.finish(StateFailed, msg)
}

func (t *Tracker) finish(state State, lastError string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.snap.State = state
	t.snap.EndedAt = &now
	t.snap.LastError = lastError
	t.persistLocked(now)
}

func (t *Tracker) now() time.Time {
	if t.clock == nil {
		return time.Now()
	}
	return t.clock.Now()
}

func (t *Tracker) persistLocked(now time.Time) {
	t.snap.Heartbeat = &now
	payload, err := json.MarshalIndent(t.snap, "", "  ")
	if err != nil {
		t.logger.Warn("status snapshot not serializable", zap.Error(err))
		return
	}
	if err := fsutil.WriteFileAtomic(t.path, payload); err != nil {
		t.logger.Warn("status persist failed",
			zap.String("path", t.path), zap.Error(err))
	}
}

// Path returns the snapshot file, mainly for logs.
func (t *Tracker) Path() string {
	return t.path
}
