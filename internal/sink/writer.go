package sink

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/okharin/mv-parser/internal/fsutil"
	"github.com/okharin/mv-parser/internal/scrape"
)

// Writer persists run documents to a single JSON file.
type Writer struct {
	path   string
	logger *zap.Logger
}

// NewWriter returns a writer targeting path. Parent directories are created
// on first write.
func NewWriter(path string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{path: path, logger: logger}
}

// Path returns the output file location.
func (w *Writer) Path() string {
	return w.path
}

// Write replaces the output file with the run document. A crash mid-write
// leaves the previous document intact.
func (w *Writer) Write(result scrape.RunResult) error {
	payload, err := Document(result)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(w.path, payload); err != nil {
		return fmt.Errorf("write run document: %w", err)
	}
	w.logger.Info("run document written",
		zap.String("path", w.path),
		zap.Int("entries", len(result.Outcomes)),
		zap.Int("bytes", len(payload)))
	return nil
}
