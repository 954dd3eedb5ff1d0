package store

import (
	"context"

	"github.com/okharin/mv-parser/internal/scrape"
)

// Noop discards writes and answers reads with empty results. It stands in
// for a real provider when persistence is disabled.
type Noop struct{}

var _ Store = Noop{}

// SaveRun discards the run summary.
func (Noop) SaveRun(context.Context, scrape.RunResult) error { return nil }

// SaveProducts discards the products.
func (Noop) SaveProducts(context.Context, string, []StoredProduct) error { return nil }

// Products always returns an empty listing.
func (Noop) Products(context.Context, ProductFilter) ([]StoredProduct, error) { return nil, nil }

// ProductByID always returns ErrNotFound.
func (Noop) ProductByID(context.Context, string) (StoredProduct, error) {
	return StoredProduct{}, ErrNotFound
}

// Close is a no-op.
func (Noop) Close(context.Context) error { return nil }
