// Package file implements the product store on plain JSON files.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/okharin/mv-parser/internal/fsutil"
	"github.com/okharin/mv-parser/internal/scrape"
	"github.com/okharin/mv-parser/internal/store"
)

// Run IDs become file names, so they are restricted to safe characters.
var validRunID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Store keeps run summaries and products as JSON documents under a data
// directory, with an in-memory index for reads. Layout:
//
//	<dir>/runs/<run-id>.json      summary of one run
//	<dir>/products/<run-id>.json  products extracted by that run
type Store struct {
	dir string

	mu       sync.RWMutex
	products []store.StoredProduct // newest first
	byID     map[string]store.StoredProduct
}

var _ store.Store = (*Store)(nil)

// New opens the store rooted at dir and loads the product index from any
// existing files.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	s := &Store{dir: dir, byID: make(map[string]store.StoredProduct)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	entries, err := os.ReadDir(s.productsDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read products dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.productsDir(), entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read product file %s: %w", path, err)
		}
		var batch []store.StoredProduct
		if err := json.Unmarshal(data, &batch); err != nil {
			return fmt.Errorf("parse product file %s: %w", path, err)
		}
		s.products = append(s.products, batch...)
	}
	sortProducts(s.products)
	for _, p := range s.products {
		s.byID[p.ID] = p
	}
	return nil
}

// SaveRun writes the summary document for a finished run.
func (s *Store) SaveRun(_ context.Context, result scrape.RunResult) error {
	if !validRunID.MatchString(result.RunID) {
		return fmt.Errorf("invalid run id %q", result.RunID)
	}
	data, err := json.MarshalIndent(store.SummaryOf(result), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	path := filepath.Join(s.dir, "runs", result.RunID+".json")
	if err := fsutil.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("write run summary: %w", err)
	}
	return nil
}

// SaveProducts writes the product document for one run and refreshes the
// index. Saving the same run again replaces its previous records.
func (s *Store) SaveProducts(_ context.Context, runID string, products []store.StoredProduct) error {
	if !validRunID.MatchString(runID) {
		return fmt.Errorf("invalid run id %q", runID)
	}
	if products == nil {
		products = []store.StoredProduct{}
	}
	for i := range products {
		if products[i].ID == "" {
			return fmt.Errorf("product id is required")
		}
		products[i].RunID = runID
	}
	data, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal products: %w", err)
	}
	path := filepath.Join(s.productsDir(), runID+".json")
	if err := fsutil.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("write products: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]store.StoredProduct, 0, len(s.products)+len(products))
	for _, p := range s.products {
		if p.RunID != runID {
			kept = append(kept, p)
		}
	}
	kept = append(kept, products...)
	sortProducts(kept)
	s.products = kept
	s.byID = make(map[string]store.StoredProduct, len(kept))
	for _, p := range kept {
		s.byID[p.ID] = p
	}
	return nil
}

// Products lists indexed products, newest first.
func (s *Store) Products(_ context.Context, filter store.ProductFilter) ([]store.StoredProduct, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := 0
	out := make([]store.StoredProduct, 0, limit)
	for _, p := range s.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		matched++
		if matched <= offset {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ProductByID looks up a single product in the index.
func (s *Store) ProductByID(_ context.Context, id string) (store.StoredProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return store.StoredProduct{}, store.ErrNotFound
	}
	return p, nil
}

// Close is a no-op; every write already landed on disk.
func (s *Store) Close(context.Context) error { return nil }

func (s *Store) productsDir() string {
	return filepath.Join(s.dir, "products")
}

func sortProducts(products []store.StoredProduct) {
	sort.SliceStable(products, func(i, j int) bool {
		if products[i].ParsedAt.Equal(products[j].ParsedAt) {
			return products[i].ID < products[j].ID
		}
		return products[i].ParsedAt.After(products[j].ParsedAt)
	})
}
