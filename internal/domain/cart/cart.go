// Package cart holds the shopping cart: one line item per purchasable
// variant, persisted as a whole after every change.
package cart

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownColor is returned when the product does not offer the
	// requested color.
	ErrUnknownColor = errors.New("color not offered for product")
	// ErrUnknownSize is returned when the product does not offer the
	// requested size.
	ErrUnknownSize = errors.New("size not offered for product")
)

// DefaultShippingFlatRate is charged on every non-empty cart.
var DefaultShippingFlatRate = decimal.RequireFromString("9.99")

// Color identifies the colorway of a line item.
type Color struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LineItem is a single purchasable variant in the cart. Price is the unit
// price captured when the item was first added.
type LineItem struct {
	ID          string          `json:"id"`
	ProductSlug string          `json:"productSlug"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Color       Color           `json:"color"`
	Size        float64         `json:"size"`
	ImageURL    string          `json:"imageUrl"`
}

// keySep separates the key parts. Slugs and color ids never contain it.
const keySep = ":"

// Key builds the line item identity for a product variant.
func Key(productSlug, colorID string, size float64) string {
	return productSlug + keySep + colorID + keySep + strconv.FormatFloat(size, 'f', -1, 64)
}

// Summary is derived from the current cart contents.
type Summary struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"itemCount"`
}

// Summarize prices items. Shipping is flatRate when at least one unit is in
// the cart and zero otherwise.
func Summarize(items []LineItem, flatRate decimal.Decimal) Summary {
	subtotal := decimal.Zero
	count := 0
	for _, it := range items {
		subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		count += it.Quantity
	}

	shipping := decimal.Zero
	if count > 0 {
		shipping = flatRate
	}

	return Summary{
		Subtotal:  subtotal,
		Shipping:  shipping,
		Total:     subtotal.Add(shipping),
		ItemCount: count,
	}
}

// Persister stores the full line item collection.
type Persister interface {
	Load(ctx context.Context) []LineItem
	Save(ctx context.Context, items []LineItem)
	Err() error
}
