package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/catalog"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	products, err := h.catalog.List(r.Context())
	if err != nil {
		fail(w, r, errors.Wrap(err, "list products"))
		return
	}

	out := catalog.Apply(products, q)
	for i := range out {
		out[i] = h.withImageBase(out[i])
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.withImageBase(*p))
}

func parseQuery(r *http.Request) (catalog.Query, error) {
	v := r.URL.Query()
	q := catalog.Query{
		Search:   v.Get("search"),
		Category: v.Get("category"),
		Brand:    v.Get("brand"),
		Sort:     catalog.SortOrder(v.Get("sort")),
	}

	switch q.Sort {
	case "", catalog.SortNewest, catalog.SortPriceAsc, catalog.SortPriceDesc, catalog.SortName:
	default:
		return catalog.Query{}, fmt.Errorf("%w: unknown sort %q", errInvalidBody, q.Sort)
	}

	for _, bound := range []struct {
		name string
		dst  **decimal.Decimal
	}{
		{"minPrice", &q.MinPrice},
		{"maxPrice", &q.MaxPrice},
	} {
		raw := v.Get(bound.name)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return catalog.Query{}, fmt.Errorf("%w: %s %q is not a number", errInvalidBody, bound.name, raw)
		}
		*bound.dst = &d
	}
	return q, nil
}

func (h *Handler) withImageBase(p catalog.Product) catalog.Product {
	p.ImageURL = h.resolveImageURL(p.ImageURL)
	return p
}

func (h *Handler) resolveImageURL(path string) string {
	if h.imageBaseURL == "" || path == "" ||
		strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return h.imageBaseURL + "/" + strings.TrimLeft(path, "/")
}

// lookupProduct resolves a product referenced from a request body.
func (h *Handler) lookupProduct(r *http.Request, slug string) (catalog.Product, error) {
	if strings.TrimSpace(slug) == "" {
		return catalog.Product{}, fmt.Errorf("%w: productSlug is required", errInvalidBody)
	}
	p, err := h.catalog.GetBySlug(r.Context(), slug)
	if err != nil {
		return catalog.Product{}, err
	}
	return h.withImageBase(*p), nil
}

// colorOf returns the product colorway for id, or a bare color when the
// product lists none.
func colorOf(p catalog.Product, id string) catalog.Color {
	if c, ok := p.Color(id); ok {
		return c
	}
	return catalog.Color{ID: id}
}
