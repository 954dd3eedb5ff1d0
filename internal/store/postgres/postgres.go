// Package postgres implements the product store on a Postgres pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okharin/mv-parser/internal/scrape"
	"github.com/okharin/mv-parser/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	RunsTable       string
	ProductsTable   string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store persists runs and products in Postgres.
type Store struct {
	pool     pgxPool
	runs     string
	products string
}

var _ store.Store = (*Store)(nil)

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	runs, products, err := tableNames(cfg)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, runs: runs, products: products}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool, cfg Config) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	runs, products, err := tableNames(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, runs: runs, products: products}, nil
}

func tableNames(cfg Config) (string, string, error) {
	runs := cfg.RunsTable
	if runs == "" {
		runs = "runs"
	}
	products := cfg.ProductsTable
	if products == "" {
		products = "products"
	}
	for _, table := range []string{runs, products} {
		if !validTableName.MatchString(table) {
			return "", "", fmt.Errorf("invalid table name %q", table)
		}
	}
	return runs, products, nil
}

// SaveRun inserts the summary row for a finished run.
func (s *Store) SaveRun(ctx context.Context, result scrape.RunResult) error {
	if result.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	sum := store.SummaryOf(result)
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	category,
	started_at,
	finished_at,
	succeeded,
	failed
) VALUES (
	$1,$2,$3,$4,$5,$6
)`, s.runs)

	args := []any{
		sum.RunID,
		sum.Category,
		sum.StartedAt,
		sum.FinishedAt,
		sum.Succeeded,
		sum.Failed,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// SaveProducts inserts one row per extracted product. Attributes and images
// land in JSONB columns.
func (s *Store) SaveProducts(ctx context.Context, runID string, products []store.StoredProduct) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	run_id,
	category,
	url,
	name,
	code,
	attributes,
	images,
	parsed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, s.products)

	for _, p := range products {
		if p.ID == "" {
			return fmt.Errorf("product id is required")
		}
		attrs, err := json.Marshal(p.Attributes)
		if err != nil {
			return fmt.Errorf("marshal attributes for %s: %w", p.ID, err)
		}
		images, err := json.Marshal(normalizeImages(p.Images))
		if err != nil {
			return fmt.Errorf("marshal images for %s: %w", p.ID, err)
		}
		args := []any{
			p.ID,
			runID,
			p.Category,
			p.URL,
			p.Name,
			p.Code,
			attrs,
			images,
			p.ParsedAt,
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert product %s: %w", p.ID, err)
		}
	}
	return nil
}

// Products lists stored products, newest first.
func (s *Store) Products(ctx context.Context, filter store.ProductFilter) ([]store.StoredProduct, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`
SELECT id, run_id, category, url, name, code, attributes, images, parsed_at
FROM %s
WHERE ($1::text = '' OR category = $1)
ORDER BY parsed_at DESC, id
LIMIT $2 OFFSET $3`, s.products)

	rows, err := s.pool.Query(ctx, query, filter.Category, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []store.StoredProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

// ProductByID loads a single product or returns store.ErrNotFound.
func (s *Store) ProductByID(ctx context.Context, id string) (store.StoredProduct, error) {
	if id == "" {
		return store.StoredProduct{}, store.ErrNotFound
	}
	query := fmt.Sprintf(`
SELECT id, run_id, category, url, name, code, attributes, images, parsed_at
FROM %s
WHERE id = $1`, s.products)

	p, err := scanProduct(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.StoredProduct{}, store.ErrNotFound
		}
		return store.StoredProduct{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close(context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (store.StoredProduct, error) {
	var (
		p      store.StoredProduct
		attrs  []byte
		images []byte
	)
	err := row.Scan(
		&p.ID,
		&p.RunID,
		&p.Category,
		&p.URL,
		&p.Name,
		&p.Code,
		&attrs,
		&images,
		&p.ParsedAt,
	)
	if err != nil {
		return store.StoredProduct{}, fmt.Errorf("scan product row: %w", err)
	}
	if err := json.Unmarshal(attrs, &p.Attributes); err != nil {
		return store.StoredProduct{}, fmt.Errorf("parse attributes for %s: %w", p.ID, err)
	}
	if err := json.Unmarshal(images, &p.Images); err != nil {
		return store.StoredProduct{}, fmt.Errorf("parse images for %s: %w", p.ID, err)
	}
	return p, nil
}

func normalizeImages(images []string) []string {
	if len(images) == 0 {
		return []string{}
	}
	return append([]string(nil), images...)
}
