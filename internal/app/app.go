// Package app wires storage, stores and the HTTP server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/favorite"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/persist"
	"github.com/xenking/storefront/internal/storage"
	"github.com/xenking/storefront/internal/storage/file"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Backend is an opened storage backend with its catalog.
type Backend struct {
	KV      storage.KV
	Catalog catalog.Provider
	Close   func()
}

// OpenBackend opens the configured storage backend. The postgres backend
// serves the catalog from its products table; the others read
// cfg.Catalog.File.
func OpenBackend(ctx context.Context, lg *zap.Logger, cfg *Config) (*Backend, error) {
	if cfg.Storage.Backend == BackendPostgres {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		return &Backend{
			KV:      postgres.NewKV(pool),
			Catalog: postgres.NewProductRepository(pool),
			Close:   pool.Close,
		}, nil
	}

	var kv storage.KV
	switch cfg.Storage.Backend {
	case BackendFile:
		fs, err := file.New(cfg.Storage.Dir)
		if err != nil {
			return nil, errors.Wrap(err, "open file storage")
		}
		kv = fs
	default:
		kv = memory.New()
	}

	var products []catalog.Product
	if cfg.Catalog.File != "" {
		var err error
		if products, err = catalog.ReadFile(cfg.Catalog.File); err != nil {
			return nil, errors.Wrapf(err, "read catalog %s", cfg.Catalog.File)
		}
	}
	static, err := catalog.NewStatic(products)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}
	lg.Info("Catalog loaded", zap.String("file", cfg.Catalog.File), zap.Int("products", len(products)))

	return &Backend{KV: kv, Catalog: static, Close: func() {}}, nil
}

// stores bundles the three collections and their stores.
type stores struct {
	cartColl     *persist.Collection[cart.LineItem]
	favoriteColl *persist.Collection[favorite.Item]
	orderColl    *persist.Collection[order.Order]

	cart      *cart.Store
	favorites *favorite.Store
	orders    *order.Store
}

func newStores(kv storage.KV, lg *zap.Logger, opts persist.Options, cfg *Config) (*stores, error) {
	rate, err := cfg.ShippingFlatRate()
	if err != nil {
		return nil, err
	}

	s := &stores{}
	if s.cartColl, err = persist.New[cart.LineItem](kv, storage.KeyCart, opts); err != nil {
		return nil, errors.Wrap(err, "cart collection")
	}
	if s.favoriteColl, err = persist.New[favorite.Item](kv, storage.KeyFavorites, opts); err != nil {
		s.cartColl.Close()
		return nil, errors.Wrap(err, "favorites collection")
	}
	if s.orderColl, err = persist.New[order.Order](kv, storage.KeyOrders, opts); err != nil {
		s.cartColl.Close()
		s.favoriteColl.Close()
		return nil, errors.Wrap(err, "orders collection")
	}

	s.cart = cart.NewStore(s.cartColl, cart.Config{ShippingFlatRate: rate, Logger: lg})
	s.favorites = favorite.NewStore(s.favoriteColl, lg)
	s.orders = order.NewStore(s.orderColl, order.Options{Logger: lg})
	return s, nil
}

// load reads the three collections concurrently.
func (s *stores) load(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { s.cart.Load(ctx); return nil })
	g.Go(func() error { s.favorites.Load(ctx); return nil })
	g.Go(func() error { s.orders.Load(ctx); return nil })
	return g.Wait()
}

type collection interface {
	Key() string
	Flush(context.Context) error
	Close()
}

func (s *stores) collections() []collection {
	return []collection{s.cartColl, s.favoriteColl, s.orderColl}
}

// flush waits for pending writes and stops the writers.
func (s *stores) flush(ctx context.Context, lg *zap.Logger) {
	for _, c := range s.collections() {
		if err := c.Flush(ctx); err != nil {
			lg.Error("Flush failed", zap.String("key", c.Key()), zap.Error(err))
		}
		c.Close()
	}
}

// close stops the writers without waiting for pending writes.
func (s *stores) close() {
	for _, c := range s.collections() {
		c.Close()
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("backend", cfg.Storage.Backend),
		zap.String("persist_mode", cfg.Persist.Mode),
	)

	backend, err := OpenBackend(ctx, lg, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	st, err := newStores(backend.KV, lg, persist.Options{
		Mode:           cfg.PersistMode(),
		Logger:         lg,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	}, cfg)
	if err != nil {
		return err
	}
	if err := st.load(ctx); err != nil {
		st.close()
		return errors.Wrap(err, "load stores")
	}
	lg.Info("Stores loaded",
		zap.Int("cart_lines", len(st.cart.Items())),
		zap.Int("favorites", len(st.favorites.Items())),
		zap.Int("orders", len(st.orders.Orders())),
	)

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("storage", 5*time.Second, health.PingCheck(backend.KV))
	healthSvc.AddReadinessCheck("persist", time.Second, health.LastErrorCheck(map[string]func() error{
		storage.KeyCart:      st.cart.Err,
		storage.KeyFavorites: st.favorites.Err,
		storage.KeyOrders:    st.orders.Err,
	}))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	h := handler.New(handler.Config{ImageBaseURL: cfg.ImageBaseURL}, handler.Deps{
		Catalog:   backend.Catalog,
		Cart:      st.cart,
		Favorites: st.favorites,
		Orders:    st.orders,
		Checkout:  checkout.NewService(st.cart, st.orders, nil, lg),
	})

	r := chi.NewRouter()
	h.Routes(r)
	r.Get("/livez", healthSvc.LiveEndpoint)
	r.Get("/readyz", healthSvc.ReadyEndpoint)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(r,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.Instrument("storefront", m.MeterProvider(), m.TracerProvider()),
		),
	}

	return serve(ctx, lg, server, healthSvc, st, cfg.Graceful)
}

// serve runs server until ctx is done or the listener fails. Either way
// readiness is withdrawn, in-flight requests drain and pending store writes
// are flushed before it returns.
func serve(ctx context.Context, lg *zap.Logger, server *http.Server, healthSvc *health.Health, st *stores, graceful GracefulConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", graceful.ReadinessDelay))
		time.Sleep(graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		st.flush(shutdownCtx, lg)
		healthSvc.Stop()
	}()

	lg.Info("Server listening", zap.String("addr", server.Addr))
	err := server.ListenAndServe()
	cancel()
	<-shutdownDone
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	return nil
}
