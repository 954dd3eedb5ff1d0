// Package seen tracks product URLs that earlier runs already processed.
package seen

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/okharin/mv-parser/internal/fsutil"
)

// Store is a file-backed set of processed URLs. Mutations accumulate in
// memory until Flush; readers see them immediately.
type Store struct {
	mu     sync.Mutex
	path   string
	urls   map[string]struct{}
	dirty  bool
	logger *zap.Logger
}

// Open loads the set from path. A missing file yields an empty set; a
// corrupted one is an error so a half-written seen list never silently
// triggers a full re-parse.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store := &Store{
		path:   path,
		urls:   make(map[string]struct{}),
		logger: logger,
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return store, nil
		}
		return nil, fmt.Errorf("read seen file %s: %w", path, err)
	}
	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return nil, fmt.Errorf("decode seen file %s: %w", path, err)
	}
	for _, u := range urls {
		if u != "" {
			store.urls[u] = struct{}{}
		}
	}
	logger.Info("seen urls loaded", zap.String("path", path), zap.Int("count", len(store.urls)))
	return store, nil
}

// Contains reports whether url was processed before.
func (s *Store) Contains(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.urls[url]
	return ok
}

// Add marks urls as processed.
func (s *Store) Add(urls ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := s.urls[u]; !ok {
			s.urls[u] = struct{}{}
			s.dirty = true
		}
	}
}

// Len reports the set size.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

// Flush persists the set when it changed since the last flush. The file is
// a sorted JSON array so diffs stay readable.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	urls := make([]string, 0, len(s.urls))
	for u := range s.urls {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	payload, err := json.MarshalIndent(urls, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal seen urls: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, payload); err != nil {
		return fmt.Errorf("write seen file: %w", err)
	}
	s.dirty = false
	s.logger.Debug("seen urls flushed", zap.Int("count", len(urls)))
	return nil
}
