package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/persist"
	"github.com/xenking/storefront/internal/storage"
	"github.com/xenking/storefront/internal/storage/file"
	"github.com/xenking/storefront/internal/storage/postgres"
)

func main() {
	var (
		from         string
		to           string
		dedupeOrders bool
	)

	flag.StringVar(&from, "from", "file:data", "source backend: file:<dir> or a postgres:// URL")
	flag.StringVar(&to, "to", "", "destination backend: file:<dir> or a postgres:// URL")
	flag.BoolVar(&dedupeOrders, "dedupe-orders", true, "drop orders with a repeated order number after copying")
	flag.Parse()

	if to == "" {
		slog.Error("destination is required: set --to")
		os.Exit(1)
	}
	if from == to {
		slog.Error("source and destination are the same", slog.String("backend", from))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, from, to, dedupeOrders); err != nil {
		slog.Error("kv migrate failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("kv migrate completed successfully")
}

func run(ctx context.Context, from, to string, dedupeOrders bool) error {
	src, closeSrc, err := openKV(ctx, from)
	if err != nil {
		return errors.Wrap(err, "open source")
	}
	defer closeSrc()

	dst, closeDst, err := openKV(ctx, to)
	if err != nil {
		return errors.Wrap(err, "open destination")
	}
	defer closeDst()

	slog.Info("copying keys", slog.Int("keys", len(storage.Keys)))

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range storage.Keys {
		g.Go(func() error {
			return copyKey(gctx, src, dst, key)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if dedupeOrders {
		return purgeOrders(ctx, dst)
	}
	return nil
}

// openKV opens a backend from its target string.
func openKV(ctx context.Context, target string) (storage.KV, func(), error) {
	switch {
	case strings.HasPrefix(target, "postgres://"), strings.HasPrefix(target, "postgresql://"):
		pool, err := postgres.NewPool(ctx, target)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect to database")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "run migrations")
		}
		return postgres.NewKV(pool), pool.Close, nil
	case strings.HasPrefix(target, "file:"):
		s, err := file.New(strings.TrimPrefix(target, "file:"))
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		return nil, nil, errors.Errorf("unsupported backend %q", target)
	}
}

// copyKey moves one collection. Absent keys are skipped; values that are
// not a JSON array are reported and left behind.
func copyKey(ctx context.Context, src, dst storage.KV, key string) error {
	value, err := src.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		slog.Info("key absent, skipping", slog.String("key", key))
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read %s", key)
	}

	if !jx.Valid(value) || jx.DecodeBytes(value).Next() != jx.Array {
		slog.Warn("value is not a JSON array, skipping",
			slog.String("key", key),
			slog.Int("bytes", len(value)),
		)
		return nil
	}

	if err := dst.Set(ctx, key, value); err != nil {
		return errors.Wrapf(err, "write %s", key)
	}

	slog.Info("copied key", slog.String("key", key), slog.Int("bytes", len(value)))
	return nil
}

// purgeOrders loads the copied order history and removes repeated order
// numbers, keeping the first occurrence.
func purgeOrders(ctx context.Context, kv storage.KV) error {
	coll, err := persist.New[order.Order](kv, storage.KeyOrders, persist.Options{Mode: persist.ModeSync})
	if err != nil {
		return errors.Wrap(err, "open orders")
	}
	defer coll.Close()

	orders := order.NewStore(coll, order.Options{})
	orders.Load(ctx)

	removed := orders.PurgeDuplicates(ctx)
	if err := orders.Err(); err != nil {
		return errors.Wrap(err, "write orders")
	}

	slog.Info("orders deduplicated",
		slog.Int("removed", removed),
		slog.Int("kept", len(orders.Orders())),
	)
	return nil
}
