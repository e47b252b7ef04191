package cart

import (
	"context"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/catalog"
)

// Config holds non-dependency configuration for the Store.
type Config struct {
	// ShippingFlatRate overrides DefaultShippingFlatRate when set. Zero
	// disables shipping charges.
	ShippingFlatRate *decimal.Decimal
	Logger           *zap.Logger
}

// Store owns the in-memory cart. Mutations apply immediately and hand a
// snapshot of the whole collection to the Persister; persistence failures
// never undo a mutation.
type Store struct {
	persist  Persister
	shipping decimal.Decimal
	lg       *zap.Logger

	mu      sync.Mutex
	items   []LineItem
	loading bool
}

// NewStore returns an empty Store that reports Loading until Load returns.
func NewStore(p Persister, cfg Config) *Store {
	shipping := DefaultShippingFlatRate
	if cfg.ShippingFlatRate != nil {
		shipping = *cfg.ShippingFlatRate
	}
	lg := cfg.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Store{
		persist:  p,
		shipping: shipping,
		lg:       lg.Named("cart"),
		items:    []LineItem{},
		loading:  true,
	}
}

// Load replaces the in-memory cart with the persisted one.
func (s *Store) Load(ctx context.Context) {
	items := s.persist.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.loading = false
	s.lg.Debug("Cart loaded", zap.Int("lines", len(items)))
}

// Loading reports whether Load has not completed yet.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// AddItem adds one unit of the product variant. An existing line for the same
// product, color and size is incremented; otherwise a new line is appended
// with the product's current price. Color and size are checked only against
// products that list their options.
func (s *Store) AddItem(ctx context.Context, p catalog.Product, color catalog.Color, size float64) (LineItem, error) {
	if len(p.Colors) > 0 {
		offered, ok := p.Color(color.ID)
		if !ok {
			return LineItem{}, ErrUnknownColor
		}
		color = offered
	}
	if len(p.Sizes) > 0 && !p.HasSize(size) {
		return LineItem{}, ErrUnknownSize
	}

	id := Key(p.Slug, color.ID, size)

	s.mu.Lock()
	defer s.mu.Unlock()

	var line LineItem
	if i := s.index(id); i >= 0 {
		s.items[i].Quantity++
		line = s.items[i]
	} else {
		line = LineItem{
			ID:          id,
			ProductSlug: p.Slug,
			Name:        p.Name,
			Price:       p.Price,
			Quantity:    1,
			Color:       Color{ID: color.ID, Name: color.Name},
			Size:        size,
			ImageURL:    p.ImageURL,
		}
		s.items = append(s.items, line)
	}

	s.lg.Debug("Item added", zap.String("id", id), zap.Int("quantity", line.Quantity))
	s.save(ctx)
	return line, nil
}

// RemoveItem drops the line with the given id. Unknown ids are ignored.
func (s *Store) RemoveItem(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(ctx, id)
}

func (s *Store) remove(ctx context.Context, id string) {
	i := s.index(id)
	if i < 0 {
		return
	}
	s.items = slices.Delete(s.items, i, i+1)
	s.lg.Debug("Item removed", zap.String("id", id))
	s.save(ctx)
}

// UpdateQuantity sets the quantity of a line. A quantity of zero or less
// removes it. Unknown ids are ignored.
func (s *Store) UpdateQuantity(ctx context.Context, id string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		s.remove(ctx, id)
		return
	}

	i := s.index(id)
	if i < 0 {
		return
	}
	s.items[i].Quantity = quantity
	s.lg.Debug("Quantity updated", zap.String("id", id), zap.Int("quantity", quantity))
	s.save(ctx)
}

// Clear empties the cart and persists the empty collection.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = []LineItem{}
	s.lg.Debug("Cart cleared")
	s.save(ctx)
}

// RemoveLines takes the given lines out of the cart: each line's quantity is
// subtracted from the current line with the same id, which is dropped once
// nothing is left. Lines and units added after the snapshot was taken stay
// in the cart. It persists at most once.
func (s *Store) RemoveLines(ctx context.Context, lines []LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, l := range lines {
		i := s.index(l.ID)
		if i < 0 {
			continue
		}
		changed = true
		if left := s.items[i].Quantity - l.Quantity; left > 0 {
			s.items[i].Quantity = left
			continue
		}
		s.items = slices.Delete(s.items, i, i+1)
	}
	if !changed {
		return
	}
	s.lg.Debug("Lines removed", zap.Int("lines", len(lines)), zap.Int("remaining", len(s.items)))
	s.save(ctx)
}

// Items returns a copy of the cart lines in insertion order.
func (s *Store) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Get returns the line with the given id.
func (s *Store) Get(id string) (LineItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		return s.items[i], true
	}
	return LineItem{}, false
}

// Summary prices the current cart.
func (s *Store) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summarize(s.items, s.shipping)
}

// Snapshot returns the lines and their summary computed from the same state.
func (s *Store) Snapshot() ([]LineItem, Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items), Summarize(s.items, s.shipping)
}

// Err returns the result of the latest persistence attempt.
func (s *Store) Err() error {
	return s.persist.Err()
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.items, func(it LineItem) bool { return it.ID == id })
}

// save must be called with s.mu held so snapshots reach the Persister in
// mutation order.
func (s *Store) save(ctx context.Context) {
	s.persist.Save(ctx, slices.Clone(s.items))
}
