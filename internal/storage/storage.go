// Package storage defines the durable key-value contract the commerce stores
// persist their collections through.
package storage

import (
	"context"

	"github.com/go-faster/errors"
)

// Keys owned by the commerce stores. Each holds a JSON array.
const (
	KeyCart      = "cart"
	KeyFavorites = "favorites"
	KeyOrders    = "orders"
)

// Keys lists every key written by the stores.
var Keys = []string{KeyCart, KeyFavorites, KeyOrders}

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("key not found")

// KV is a string-keyed persistent store.
type KV interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
