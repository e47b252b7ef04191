// Package favorite keeps the set of saved product colorways.
package favorite

import (
	"context"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/catalog"
)

// Color is the saved colorway.
type Color struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ColorCode string `json:"colorCode,omitempty"`
}

// Item is a saved product colorway.
type Item struct {
	ID          string          `json:"id"`
	ProductSlug string          `json:"productSlug"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"imageUrl"`
	BrandName   string          `json:"brandName"`
	Color       Color           `json:"color"`
}

const keySep = ":"

// Key builds the favorite identity for a product colorway.
func Key(productSlug, colorID string) string {
	return productSlug + keySep + colorID
}

// Persister stores the full favorites collection.
type Persister interface {
	Load(ctx context.Context) []Item
	Save(ctx context.Context, items []Item)
	Purge(ctx context.Context)
	Err() error
}

// Store owns the in-memory favorites set.
type Store struct {
	persist Persister
	lg      *zap.Logger

	mu      sync.Mutex
	items   []Item
	loading bool
}

// NewStore returns an empty Store that reports Loading until Load returns.
func NewStore(p Persister, lg *zap.Logger) *Store {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Store{
		persist: p,
		lg:      lg.Named("favorite"),
		items:   []Item{},
		loading: true,
	}
}

// Load replaces the in-memory set with the persisted one.
func (s *Store) Load(ctx context.Context) {
	items := s.persist.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.loading = false
	s.lg.Debug("Favorites loaded", zap.Int("items", len(items)))
}

// Loading reports whether Load has not completed yet.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Add saves the product colorway. Adding an existing favorite changes
// nothing and reports false.
func (s *Store) Add(ctx context.Context, p catalog.Product, color catalog.Color) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(ctx, p, color)
}

func (s *Store) add(ctx context.Context, p catalog.Product, color catalog.Color) (Item, bool) {
	id := Key(p.Slug, color.ID)
	if i := s.index(id); i >= 0 {
		return s.items[i], false
	}

	it := Item{
		ID:          id,
		ProductSlug: p.Slug,
		Name:        p.Name,
		Price:       p.Price,
		ImageURL:    p.ImageURL,
		BrandName:   p.Brand,
		Color:       Color{ID: color.ID, Name: color.Name, ColorCode: color.ColorCode},
	}
	s.items = append(s.items, it)
	s.lg.Debug("Favorite added", zap.String("id", id))
	s.save(ctx)
	return it, true
}

// Remove drops the favorite with the given id. Unknown ids are ignored.
func (s *Store) Remove(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(ctx, id)
}

func (s *Store) remove(ctx context.Context, id string) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	s.lg.Debug("Favorite removed", zap.String("id", id))
	s.save(ctx)
	return true
}

// Toggle adds the colorway when absent and removes it when present. It
// returns whether the colorway is a favorite afterwards.
func (s *Store) Toggle(ctx context.Context, p catalog.Product, color catalog.Color) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.remove(ctx, Key(p.Slug, color.ID)) {
		return false
	}
	s.add(ctx, p, color)
	return true
}

// IsFavorite reports whether the product colorway is saved.
func (s *Store) IsFavorite(productSlug, colorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index(Key(productSlug, colorID)) >= 0
}

// Items returns a copy of the favorites in insertion order.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Clear empties the set and removes the stored collection.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = []Item{}
	s.lg.Debug("Favorites cleared")
	s.persist.Purge(ctx)
}

// Err returns the result of the latest persistence attempt.
func (s *Store) Err() error {
	return s.persist.Err()
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.items, func(it Item) bool { return it.ID == id })
}

func (s *Store) save(ctx context.Context) {
	s.persist.Save(ctx, slices.Clone(s.items))
}
