package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/okharin/mv-parser/internal/archive"
	"github.com/okharin/mv-parser/internal/scrape"
	"github.com/okharin/mv-parser/internal/status"
)

const (
	defaultHeartbeatBatch = 10
	archivePutTimeout     = 10 * time.Second
)

// Hasher fingerprints captured page content. *sha256.Hasher is the
// production implementation.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Monitor observes worker outcomes for the active run: it flushes progress
// to the status tracker every batch-th task and archives the HTML captured
// for failed pages. Its hook methods run on worker goroutines and are safe
// for concurrent use.
type Monitor struct {
	tracker *status.Tracker
	blobs   archive.BlobStore
	hasher  Hasher
	batch   int
	logger  *zap.Logger

	mu        sync.Mutex
	runID     string
	processed int
	failed    int
	digests   map[string]struct{}
}

// NewMonitor constructs a Monitor reporting to tracker. A nil blob store
// disables page archiving; a nil hasher disables duplicate suppression and
// every captured page is uploaded.
func NewMonitor(tracker *status.Tracker, blobs archive.BlobStore, hasher Hasher, batchSize int, logger *zap.Logger) *Monitor {
	if blobs == nil {
		blobs = archive.Noop{}
	}
	if batchSize <= 0 {
		batchSize = defaultHeartbeatBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{tracker: tracker, blobs: blobs, hasher: hasher, batch: batchSize, logger: logger}
}

// Begin resets the counters for a new run.
func (m *Monitor) Begin(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runID = runID
	m.processed = 0
	m.failed = 0
	m.digests = make(map[string]struct{})
}

// Observe records one task outcome.
func (m *Monitor) Observe(outcome scrape.Outcome) {
	m.mu.Lock()
	m.processed++
	if !outcome.Success() {
		m.failed++
	}
	processed, failed := m.processed, m.failed
	m.mu.Unlock()

	if processed%m.batch == 0 {
		m.tracker.Heartbeat(processed, failed)
	}
}

// Flush pushes the final counters to the tracker. Called once after the
// run drains.
func (m *Monitor) Flush() {
	m.mu.Lock()
	processed, failed := m.processed, m.failed
	m.mu.Unlock()
	m.tracker.Heartbeat(processed, failed)
}

// CapturePage archives the HTML captured for a failed task under the
// active run. Pages whose content already went up this run are skipped;
// a blocked run tends to capture the same interstitial for every task.
// Archive failures are logged and swallowed; the page copy is diagnostic,
// never load-bearing.
func (m *Monitor) CapturePage(task scrape.Task, html string) {
	m.mu.Lock()
	runID := m.runID
	m.mu.Unlock()
	if runID == "" || html == "" {
		return
	}

	if m.hasher != nil {
		if digest, err := m.hasher.Hash([]byte(html)); err == nil {
			m.mu.Lock()
			_, dup := m.digests[digest]
			if !dup {
				m.digests[digest] = struct{}{}
			}
			m.mu.Unlock()
			if dup {
				m.logger.Debug("duplicate failed page skipped",
					zap.Int("task_id", task.ID),
					zap.String("digest", digest),
				)
				return
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), archivePutTimeout)
	defer cancel()

	uri, err := m.blobs.Put(ctx, archive.FailureKey(runID, task.ID), "text/html", strings.NewReader(html))
	if err != nil {
		m.logger.Warn("archive failed page",
			zap.Int("task_id", task.ID),
			zap.String("url", task.URL),
			zap.Error(err),
		)
		return
	}
	if uri != "" {
		m.logger.Debug("failed page archived",
			zap.Int("task_id", task.ID),
			zap.String("uri", uri),
		)
	}
}
