package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/storage"
)

const (
	getValueSQL = `SELECT value FROM kv_store WHERE key = $1`

	setValueSQL = `INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

	removeValueSQL = `DELETE FROM kv_store WHERE key = $1`
)

var _ storage.KV = (*KV)(nil)

// KV implements storage.KV on the kv_store table. Values must be valid JSON.
type KV struct {
	pool *pgxpool.Pool
}

// NewKV returns a KV that uses the given pool.
func NewKV(pool *pgxpool.Pool) *KV {
	return &KV{pool: pool}
}

// Get implements storage.KV.
func (s *KV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	if err := s.pool.QueryRow(ctx, getValueSQL, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get %q", key)
	}
	return value, nil
}

// Set implements storage.KV.
func (s *KV) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.pool.Exec(ctx, setValueSQL, key, string(value)); err != nil {
		return errors.Wrapf(err, "set %q", key)
	}
	return nil
}

// Remove implements storage.KV.
func (s *KV) Remove(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, removeValueSQL, key); err != nil {
		return errors.Wrapf(err, "remove %q", key)
	}
	return nil
}

// Ping implements storage.KV.
func (s *KV) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
