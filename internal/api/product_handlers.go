package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/okharin/mv-parser/internal/store"
)

const maxProductLimit = 500

// listProducts handles GET /products?category=&limit=&offset=. It returns a
// JSON array of stored products, newest first, 400 for invalid paging, or
// 500 if the store call fails.
func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, store.DefaultListLimit, maxProductLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := store.ProductFilter{
		Category: strings.TrimSpace(r.URL.Query().Get("category")),
		Limit:    limit,
		Offset:   offset,
	}
	products, err := s.store.Products(r.Context(), filter)
	if err != nil {
		s.logger.Error("list products failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []store.StoredProduct{}
	}
	writeJSON(w, http.StatusOK, products)
}

// getProduct handles GET /products/{product_id}. It returns the stored
// product, 404 when the store reports store.ErrNotFound, or 500 otherwise.
func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "product_id")
	product, err := s.store.ProductByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		s.logger.Error("get product failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load product")
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
