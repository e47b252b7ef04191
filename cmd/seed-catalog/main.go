package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		databaseURL  string
		productsFile string
		dryRun       bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file (.json or .json.gz)")
	flag.BoolVar(&dryRun, "dry-run", false, "validate the products file without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, dryRun); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string, dryRun bool) error {
	products, err := readProducts(productsFile)
	if err != nil {
		return err
	}
	if dryRun {
		slog.Info("dry run, skipping database", slog.Int("products", len(products)))
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	if err := postgres.NewProductRepository(pool).Upsert(ctx, products); err != nil {
		return errors.Wrap(err, "upsert products")
	}
	for _, p := range products {
		slog.Info("upserted product", slog.String("slug", p.Slug), slog.String("name", p.Name))
	}

	return nil
}

// readProducts decodes and normalizes the products file, rejecting invalid
// records and duplicate slugs before anything is written.
func readProducts(path string) ([]catalog.Product, error) {
	slog.Info("reading products file", slog.String("path", path))

	raw, err := catalog.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read products file")
	}

	products := make([]catalog.Product, 0, len(raw))
	for _, p := range raw {
		np, err := catalog.NewProduct(p)
		if err != nil {
			return nil, err
		}
		products = append(products, np)
	}
	if _, err := catalog.NewStatic(products); err != nil {
		return nil, errors.Wrap(err, "validate products")
	}

	return products, nil
}
