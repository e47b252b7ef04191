package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/catalog"
)

const (
	productColumns = `slug, name, price, image_url, brand, category, colors, sizes, created_at`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY created_at DESC, slug`

	getProductBySlugSQL = `SELECT ` + productColumns + ` FROM products WHERE slug = $1`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			image_url = EXCLUDED.image_url,
			brand = EXCLUDED.brand,
			category = EXCLUDED.category,
			colors = EXCLUDED.colors,
			sizes = EXCLUDED.sizes`
)

var _ catalog.Provider = (*ProductRepository)(nil)

// ProductRepository implements catalog.Provider backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products, newest first.
func (r *ProductRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetBySlug returns a single product.
func (r *ProductRepository) GetBySlug(ctx context.Context, slug string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductBySlugSQL, slug)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %q", slug)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %q", slug)
	}
	return &p, nil
}

// Upsert inserts the products in one batch, replacing rows with the same
// slug. created_at is kept for existing rows and defaults to now for new
// rows without one.
func (r *ProductRepository) Upsert(ctx context.Context, products []catalog.Product) error {
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, p := range products {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		colors := p.Colors
		if colors == nil {
			colors = []catalog.Color{}
		}
		sizes := p.Sizes
		if sizes == nil {
			sizes = []float64{}
		}
		batch.Queue(upsertProductSQL,
			p.Slug, p.Name, p.Price, p.ImageURL, p.Brand, p.Category, colors, sizes, p.CreatedAt,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "upsert products")
	}
	return nil
}

// scanProduct runs rows through catalog.NewProduct so stored data obeys the
// same rules as freshly seeded data.
func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	if err := row.Scan(
		&p.Slug, &p.Name, &p.Price, &p.ImageURL, &p.Brand, &p.Category,
		&p.Colors, &p.Sizes, &p.CreatedAt,
	); err != nil {
		return catalog.Product{}, err
	}
	return catalog.NewProduct(p)
}
