package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okharin/mv-parser/internal/scrape"
	"github.com/okharin/mv-parser/internal/store"
)

func TestServer_ListProducts_ReturnsPage(t *testing.T) {
	t.Parallel()

	st := &fakeProductStore{products: []store.StoredProduct{
		{ID: "p-1", RunID: "run-1", Category: "smartfon", URL: "https://www.mvideo.ru/products/1", Name: "Смартфон Apple iPhone 15"},
		{ID: "p-2", RunID: "run-1", Category: "smartfon", URL: "https://www.mvideo.ru/products/2", Name: "Смартфон Samsung Galaxy S24"},
	}}
	server := newTestServer(t, &fakeParseJob{}, &fakeUpdateJob{}, st)

	req := httptest.NewRequest(http.MethodGet, "/products?category=smartfon&limit=2&offset=1", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got []store.StoredProduct
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	require.Equal(t, "Смартфон Apple iPhone 15", got[0].Name)

	require.Equal(t, store.ProductFilter{Category: "smartfon", Limit: 2, Offset: 1}, st.lastFilter)
}

func TestServer_ListProducts_EmptyIsArray(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeParseJob{}, &fakeUpdateJob{}, &fakeProductStore{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestServer_ListProducts_DefaultsAndClamp(t *testing.T) {
	t.Parallel()

	st := &fakeProductStore{}
	server := newTestServer(t, &fakeParseJob{}, &fakeUpdateJob{}, st)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, store.DefaultListLimit, st.lastFilter.Limit)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products?limit=99999", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, maxProductLimit, st.lastFilter.Limit)
}

func TestServer_ListProducts_InvalidPaging(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeParseJob{}, &fakeUpdateJob{}, &fakeProductStore{})

	for _, target := range []string{
		"/products?limit=0",
		"/products?limit=abc",
		"/products?offset=-1",
	} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestServer_ListProducts_StoreError(t *testing.T) {
	t.Parallel()

	st := &fakeProductStore{err: errors.New("connection refused")}
	server := newTestServer(t, &fakeParseJob{}, &fakeUpdateJob{}, st)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "failed to list products")
}

func TestServer_GetProduct_Succeeds(t *testing.T) {
	t.Parallel()

	st := &fakeProductStore{products: []store.StoredProduct{{
		ID:         "p-1",
		RunID:      "run-1",
		URL:        "https://www.mvideo.ru/products/1",
		Name:       "Ноутбук ASUS VivoBook",
		Attributes: scrape.Attributes{"Диагональ экрана": "15.6\""},
		ParsedAt:   time.Unix(1700000000, 0).UTC(),
	}}}
	server := newTestServer(t, &fakeParseJob{}, &fakeUpdateJob{}, st)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/p-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Ноутбук ASUS VivoBook")
	require.Contains(t, rec.Body.String(), "Диагональ экрана")
}

func TestServer_GetProduct_NotFound(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeParseJob{}, &fakeUpdateJob{}, &fakeProductStore{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "product not found")
}

// --- helpers/fakes ---

// fakeProductStore serves canned products and records the last list filter.
type fakeProductStore struct {
	store.Noop
	products   []store.StoredProduct
	err        error
	lastFilter store.ProductFilter
}

func (f *fakeProductStore) Products(_ context.Context, filter store.ProductFilter) ([]store.StoredProduct, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.products, nil
}

func (f *fakeProductStore) ProductByID(_ context.Context, id string) (store.StoredProduct, error) {
	if f.err != nil {
		return store.StoredProduct{}, f.err
	}
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return store.StoredProduct{}, store.ErrNotFound
}
