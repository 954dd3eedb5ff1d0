package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/okharin/mv-parser/internal/scrape"
	"github.com/okharin/mv-parser/internal/store"
)

var productColumns = []string{
	"id", "run_id", "category", "url", "name", "code", "attributes", "images", "parsed_at",
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, Config{})
	require.ErrorContains(t, err, "pool is required")

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, Config{RunsTable: "runs; DROP TABLE runs"})
	require.ErrorContains(t, err, "invalid table name")

	st, err := NewWithPool(mock, Config{})
	require.NoError(t, err)
	require.Equal(t, "runs", st.runs)
	require.Equal(t, "products", st.products)
}

func TestSaveRunInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewWithPool(mock, Config{})
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(90 * time.Second)
	result := scrape.RunResult{
		RunID:    "run-1",
		Category: "smartfon",
		Started:  started,
		Finished: finished,
		Counts:   scrape.RunCounts{Succeeded: 4, Failed: 1},
	}

	mock.ExpectExec("INSERT INTO runs").
		WithArgs("run-1", "smartfon", started, finished, 4, 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.SaveRun(context.Background(), result))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewWithPool(mock, Config{})
	require.NoError(t, err)

	err = st.SaveRun(context.Background(), scrape.RunResult{})
	require.ErrorContains(t, err, "run id is required")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveProductsInsertsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewWithPool(mock, Config{})
	require.NoError(t, err)

	parsedAt := time.Unix(1700000000, 0).UTC()
	attrs := scrape.Attributes{}
	attrs.Set("Цвет", "черный")

	products := []store.StoredProduct{
		{
			ID:         "p1",
			Category:   "smartfon",
			URL:        "https://example.com/products/smartfon-a",
			Name:       "Смартфон A",
			Code:       "1001",
			Attributes: attrs,
			Images:     []string{"https://img/a.jpg"},
			ParsedAt:   parsedAt,
		},
		{
			ID:       "p2",
			Category: "smartfon",
			URL:      "https://example.com/products/smartfon-b",
			Name:     "Смартфон B",
			ParsedAt: parsedAt,
		},
	}

	mock.ExpectExec("INSERT INTO products").
		WithArgs(
			"p1",
			"run-1",
			"smartfon",
			"https://example.com/products/smartfon-a",
			"Смартфон A",
			"1001",
			[]byte(`{"цвет":"черный"}`),
			[]byte(`["https://img/a.jpg"]`),
			parsedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO products").
		WithArgs(
			"p2",
			"run-1",
			"smartfon",
			"https://example.com/products/smartfon-b",
			"Смартфон B",
			"",
			[]byte(`{}`),
			[]byte(`[]`),
			parsedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.SaveProducts(context.Background(), "run-1", products))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveProductsRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewWithPool(mock, Config{})
	require.NoError(t, err)

	err = st.SaveProducts(context.Background(), "run-1", []store.StoredProduct{{Name: "без id"}})
	require.ErrorContains(t, err, "product id is required")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProductsListsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewWithPool(mock, Config{})
	require.NoError(t, err)

	newer := time.Unix(1700003600, 0).UTC()
	older := time.Unix(1700000000, 0).UTC()

	rows := pgxmock.NewRows(productColumns).
		AddRow("p2", "run-2", "smartfon", "https://example.com/products/smartfon-b", "Смартфон B", "1002",
			[]byte(`{"цвет":"белый"}`), []byte(`["https://img/b.jpg"]`), newer).
		AddRow("p1", "run-1", "smartfon", "https://example.com/products/smartfon-a", "Смартфон A", "1001",
			[]byte(`{}`), []byte(`[]`), older)

	mock.ExpectQuery("FROM products").
		WithArgs("", store.DefaultListLimit, 0).
		WillReturnRows(rows)

	listed, err := st.Products(context.Background(), store.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "p2", listed[0].ID)
	require.Equal(t, "run-2", listed[0].RunID)
	value, ok := listed[0].Attributes.Get("цвет")
	require.True(t, ok)
	require.Equal(t, "белый", value)
	require.Equal(t, []string{"https://img/b.jpg"}, listed[0].Images)
	require.Empty(t, listed[1].Images)
	require.True(t, listed[1].ParsedAt.Equal(older))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProductsPassesFilter(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewWithPool(mock, Config{})
	require.NoError(t, err)

	mock.ExpectQuery("FROM products").
		WithArgs("televizor", 2, 4).
		WillReturnRows(pgxmock.NewRows(productColumns))

	listed, err := st.Products(context.Background(), store.ProductFilter{
		Category: "televizor",
		Limit:    2,
		Offset:   4,
	})
	require.NoError(t, err)
	require.Empty(t, listed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProductByID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewWithPool(mock, Config{})
	require.NoError(t, err)

	parsedAt := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("FROM products").
		WithArgs("p1").
		WillReturnRows(pgxmock.NewRows(productColumns).
			AddRow("p1", "run-1", "smartfon", "https://example.com/products/smartfon-a", "Смартфон A", "1001",
				[]byte(`{"цвет":"черный"}`), []byte(`["https://img/a.jpg"]`), parsedAt))

	got, err := st.ProductByID(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "Смартфон A", got.Name)
	require.Equal(t, "run-1", got.RunID)
	require.True(t, got.ParsedAt.Equal(parsedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProductByIDNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	st, err := NewWithPool(mock, Config{})
	require.NoError(t, err)

	mock.ExpectQuery("FROM products").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = st.ProductByID(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = st.ProductByID(context.Background(), "")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCloseIsNilSafe(t *testing.T) {
	t.Parallel()

	var st *Store
	require.NoError(t, st.Close(context.Background()))
}
