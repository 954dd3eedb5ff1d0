package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okharin/mv-parser/internal/scrape"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("product not found")

// DefaultListLimit caps product listings when the caller does not ask for a
// specific page size.
const DefaultListLimit = 50

// StoredProduct is one extracted product as persisted by a provider.
type StoredProduct struct {
	// ID is the provider-independent primary key, assigned by the caller.
	ID string `json:"id"`
	// RunID is the run that produced the record.
	RunID string `json:"run_id"`
	// Category is the link-file category the source URL belongs to.
	Category   string            `json:"category,omitempty"`
	URL        string            `json:"url"`
	Name       string            `json:"name"`
	Code       string            `json:"code,omitempty"`
	Attributes scrape.Attributes `json:"attributes"`
	Images     []string          `json:"images"`
	// ParsedAt is when the owning run finished.
	ParsedAt time.Time `json:"parsed_at"`
}

// ProductFilter narrows product listings. A zero filter lists everything up
// to DefaultListLimit.
type ProductFilter struct {
	Category string
	Limit    int
	Offset   int
}

// RunSummary is the reduction of a run result that providers persist.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Category   string    `json:"category,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
}

// SummaryOf reduces a run result to its persisted summary.
func SummaryOf(result scrape.RunResult) RunSummary {
	return RunSummary{
		RunID:      result.RunID,
		Category:   result.Category,
		StartedAt:  result.Started,
		FinishedAt: result.Finished,
		Succeeded:  result.Counts.Succeeded,
		Failed:     result.Counts.Failed,
	}
}

// ProductsOf builds stored products from a run's successful outcomes. ids
// assigns each record its primary key.
func ProductsOf(result scrape.RunResult, ids scrape.IDGenerator) ([]StoredProduct, error) {
	var out []StoredProduct
	for _, outcome := range result.Outcomes {
		if !outcome.Success() {
			continue
		}
		id, err := ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate product id: %w", err)
		}
		rec := outcome.Record
		out = append(out, StoredProduct{
			ID:         id,
			RunID:      result.RunID,
			Category:   result.Category,
			URL:        rec.URL,
			Name:       rec.Name,
			Code:       rec.Code,
			Attributes: rec.Attributes,
			Images:     rec.Images,
			ParsedAt:   result.Finished,
		})
	}
	return out, nil
}

// Store persists run summaries and extracted products.
type Store interface {
	// SaveRun records the summary of a finished run.
	SaveRun(ctx context.Context, result scrape.RunResult) error
	// SaveProducts records the products extracted during one run.
	SaveProducts(ctx context.Context, runID string, products []StoredProduct) error
	// Products lists stored products, newest first.
	Products(ctx context.Context, filter ProductFilter) ([]StoredProduct, error)
	// ProductByID loads a single product or returns ErrNotFound.
	ProductByID(ctx context.Context, id string) (StoredProduct, error)
	// Close releases provider resources.
	Close(ctx context.Context) error
}
