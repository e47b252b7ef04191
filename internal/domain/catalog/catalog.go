// Package catalog describes the product records the commerce stores snapshot
// from when items are added to the cart or favorites.
package catalog

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrInvalidProduct is returned by NewProduct for records that cannot be
	// stored or sold.
	ErrInvalidProduct = errors.New("invalid product")
)

// Color is a purchasable colorway of a product.
type Color struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ColorCode string `json:"colorCode,omitempty"`
}

// Product is a catalog item as served by the provider.
type Product struct {
	Slug      string          `json:"slug"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"imageUrl"`
	Brand     string          `json:"brand"`
	Category  string          `json:"category"`
	Colors    []Color         `json:"colors"`
	Sizes     []float64       `json:"sizes"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Color returns the product colorway with the given id.
func (p Product) Color(id string) (Color, bool) {
	for _, c := range p.Colors {
		if c.ID == id {
			return c, true
		}
	}
	return Color{}, false
}

// HasSize reports whether size is offered.
func (p Product) HasSize(size float64) bool {
	return slices.Contains(p.Sizes, size)
}

// Provider supplies product records.
type Provider interface {
	List(ctx context.Context) ([]Product, error)
	GetBySlug(ctx context.Context, slug string) (*Product, error)
}

// NewProduct normalizes raw provider data into a Product. Text fields are
// trimmed, duplicate sizes collapsed and sizes sorted ascending.
func NewProduct(p Product) (Product, error) {
	p.Slug = strings.TrimSpace(p.Slug)
	p.Name = strings.TrimSpace(p.Name)
	p.Brand = strings.TrimSpace(p.Brand)
	p.Category = strings.TrimSpace(p.Category)
	p.ImageURL = strings.TrimSpace(p.ImageURL)

	switch {
	case p.Slug == "":
		return Product{}, errors.Wrap(ErrInvalidProduct, "slug is required")
	case strings.Contains(p.Slug, ":"):
		return Product{}, errors.Wrapf(ErrInvalidProduct, "product %s: slug must not contain ':'", p.Slug)
	case p.Name == "":
		return Product{}, errors.Wrapf(ErrInvalidProduct, "product %s: name is required", p.Slug)
	case p.Price.IsNegative():
		return Product{}, errors.Wrapf(ErrInvalidProduct, "product %s: negative price", p.Slug)
	}

	colors := make([]Color, 0, len(p.Colors))
	seen := make(map[string]struct{}, len(p.Colors))
	for _, c := range p.Colors {
		c.ID = strings.TrimSpace(c.ID)
		c.Name = strings.TrimSpace(c.Name)
		c.ColorCode = strings.TrimSpace(c.ColorCode)
		if c.ID == "" {
			return Product{}, errors.Wrapf(ErrInvalidProduct, "product %s: color id is required", p.Slug)
		}
		if strings.Contains(c.ID, ":") {
			return Product{}, errors.Wrapf(ErrInvalidProduct, "product %s: color id %s must not contain ':'", p.Slug, c.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return Product{}, errors.Wrapf(ErrInvalidProduct, "product %s: duplicate color %s", p.Slug, c.ID)
		}
		seen[c.ID] = struct{}{}
		colors = append(colors, c)
	}
	p.Colors = colors

	sizes := slices.Clone(p.Sizes)
	slices.Sort(sizes)
	p.Sizes = slices.Compact(sizes)

	return p, nil
}
