package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/persist"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for relative product image paths" flag:"image-base-url"`
	Storage      StorageConfig
	Persist      PersistConfig
	Cart         CartConfig
	Catalog      CatalogConfig
	Graceful     GracefulConfig
}

// StorageConfig selects where the cart, favorites and orders live.
type StorageConfig struct {
	Backend string `default:"file" usage:"Storage backend: memory, file or postgres"`
	Dir     string `default:"data" usage:"Directory for the file backend"`
}

// PersistConfig controls how store mutations reach storage.
type PersistConfig struct {
	Mode string `default:"async" usage:"Write mode: async (coalescing writer) or sync"`
}

// CartConfig holds cart pricing.
type CartConfig struct {
	ShippingFlatRate string `default:"9.99" usage:"Shipping charged on non-empty carts" flag:"shipping-flat-rate"`
}

// CatalogConfig points at the product list for non-postgres backends.
type CatalogConfig struct {
	File string `default:"db/seed/products.json" usage:"Products JSON file (.json or .json.gz)"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, applies platform defaults and validates the result.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps DATABASE_URL and PORT, as set by hosting
// platforms, onto the STOREFRONT_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Storage.Dir == "" {
			return errors.New("storage dir is required for the file backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required for the postgres backend: set STOREFRONT_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if _, err := persist.ParseMode(c.Persist.Mode); err != nil {
		return err
	}
	if _, err := c.ShippingFlatRate(); err != nil {
		return err
	}
	return nil
}

// PersistMode returns the parsed persist mode.
func (c *Config) PersistMode() persist.Mode {
	m, _ := persist.ParseMode(c.Persist.Mode)
	return m
}

// ShippingFlatRate returns the parsed cart shipping rate, or nil to keep
// the cart default.
func (c *Config) ShippingFlatRate() (*decimal.Decimal, error) {
	if c.Cart.ShippingFlatRate == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(c.Cart.ShippingFlatRate)
	if err != nil {
		return nil, errors.Wrap(err, "parse shipping flat rate")
	}
	if d.IsNegative() {
		return nil, errors.New("shipping flat rate must not be negative")
	}
	return &d, nil
}
