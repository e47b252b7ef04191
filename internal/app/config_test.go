package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/persist"
)

func validConfig() Config {
	return Config{
		Addr:     defaultAddr,
		Storage:  StorageConfig{Backend: BackendFile, Dir: "data"},
		Persist:  PersistConfig{Mode: "async"},
		Cart:     CartConfig{ShippingFlatRate: "9.99"},
		Graceful: GracefulConfig{},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"Valid", func(*Config) {}, ""},
		{"Memory", func(c *Config) { c.Storage.Backend = BackendMemory }, ""},
		{"UnknownBackend", func(c *Config) { c.Storage.Backend = "redis" }, `unknown storage backend "redis"`},
		{"FileWithoutDir", func(c *Config) { c.Storage.Dir = "" }, "storage dir is required for the file backend"},
		{"PostgresWithoutURL", func(c *Config) { c.Storage.Backend = BackendPostgres }, "database URL is required"},
		{"PostgresWithURL", func(c *Config) {
			c.Storage.Backend = BackendPostgres
			c.DatabaseURL = "postgres://localhost/storefront"
		}, ""},
		{"BadMode", func(c *Config) { c.Persist.Mode = "later" }, `unknown persist mode "later"`},
		{"BadRate", func(c *Config) { c.Cart.ShippingFlatRate = "free" }, "parse shipping flat rate"},
		{"NegativeRate", func(c *Config) { c.Cart.ShippingFlatRate = "-1" }, "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Derived(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, persist.ModeAsync, cfg.PersistMode())

	rate, err := cfg.ShippingFlatRate()
	require.NoError(t, err)
	require.NotNil(t, rate)
	assert.True(t, rate.Equal(decimal.RequireFromString("9.99")))

	cfg.Cart.ShippingFlatRate = ""
	rate, err = cfg.ShippingFlatRate()
	require.NoError(t, err)
	assert.Nil(t, rate)
}

func TestConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9090")

	cfg := validConfig()
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)

	cfg = validConfig()
	cfg.Addr = "127.0.0.1:7000"
	cfg.DatabaseURL = "postgres://explicit/db"
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	catalogFile := filepath.Join(dir, "products.json")
	require.NoError(t, os.WriteFile(catalogFile, []byte(`[{"slug":"a","name":"A","price":"1.50"}]`), 0o600))

	cfg := validConfig()
	cfg.Storage.Dir = filepath.Join(dir, "kv")
	cfg.Catalog.File = catalogFile

	b, err := OpenBackend(ctx, zap.NewNop(), &cfg)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.KV.Ping(ctx))
	p, err := b.Catalog.GetBySlug(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A", p.Name)

	cfg.Catalog.File = filepath.Join(dir, "missing.json")
	_, err = OpenBackend(ctx, zap.NewNop(), &cfg)
	require.Error(t, err)
}
