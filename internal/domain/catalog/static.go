package catalog

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
)

var _ Provider = (*Static)(nil)

// Static serves a fixed product list from memory.
type Static struct {
	products []Product
	bySlug   map[string]int
}

// NewStatic validates products with NewProduct. Duplicate slugs are
// rejected.
func NewStatic(products []Product) (*Static, error) {
	s := &Static{
		products: make([]Product, 0, len(products)),
		bySlug:   make(map[string]int, len(products)),
	}
	for _, raw := range products {
		p, err := NewProduct(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := s.bySlug[p.Slug]; dup {
			return nil, errors.Wrapf(ErrInvalidProduct, "duplicate slug %s", p.Slug)
		}
		s.bySlug[p.Slug] = len(s.products)
		s.products = append(s.products, p)
	}
	return s, nil
}

// List implements Provider.
func (s *Static) List(context.Context) ([]Product, error) {
	return slices.Clone(s.products), nil
}

// GetBySlug implements Provider.
func (s *Static) GetBySlug(_ context.Context, slug string) (*Product, error) {
	i, ok := s.bySlug[slug]
	if !ok {
		return nil, ErrNotFound
	}
	p := s.products[i]
	return &p, nil
}

// ReadFile decodes a JSON array of products. Files ending in .gz are
// decompressed first.
func ReadFile(path string) ([]Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if filepath.Ext(path) == ".gz" {
		zr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip catalog")
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	var products []Product
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return products, nil
}
