package app

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/persist"
	"github.com/xenking/storefront/internal/storage"
	"github.com/xenking/storefront/internal/storage/memory"
	"github.com/xenking/storefront/pkg/health"
)

func newTestStores(t *testing.T, kv storage.KV) *stores {
	t.Helper()
	cfg := validConfig()
	st, err := newStores(kv, zap.NewNop(), persist.Options{Mode: persist.ModeAsync}, &cfg)
	require.NoError(t, err)
	require.NoError(t, st.load(context.Background()))
	return st
}

func addToCart(t *testing.T, st *stores) {
	t.Helper()
	_, err := st.cart.AddItem(context.Background(), catalog.Product{
		Slug:  "air-runner",
		Name:  "Air Runner",
		Price: decimal.NewFromInt(100),
	}, catalog.Color{}, 0)
	require.NoError(t, err)
}

func TestServe_ListenFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = busy.Close() }()

	kv := memory.New()
	st := newTestStores(t, kv)
	addToCart(t, st)

	healthSvc := health.New()
	server := &http.Server{Addr: busy.Addr().String(), ReadHeaderTimeout: time.Second}

	done := make(chan error, 1)
	go func() {
		done <- serve(context.Background(), zap.NewNop(), server, healthSvc, st,
			GracefulConfig{ShutdownTimeout: time.Second})
	}()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after the listener failed")
	}
	assert.False(t, healthSvc.IsReady())

	data, err := kv.Get(context.Background(), storage.KeyCart)
	require.NoError(t, err, "pending cart write is flushed")
	assert.Contains(t, string(data), `"air-runner::0"`)
}

func TestServe_ContextCancel(t *testing.T) {
	kv := memory.New()
	st := newTestStores(t, kv)
	addToCart(t, st)

	healthSvc := health.New()
	server := &http.Server{Addr: "127.0.0.1:0", ReadHeaderTimeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, zap.NewNop(), server, healthSvc, st,
			GracefulConfig{ShutdownTimeout: time.Second})
	}()

	require.Eventually(t, healthSvc.IsReady, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	assert.False(t, healthSvc.IsReady())

	_, err := kv.Get(context.Background(), storage.KeyCart)
	require.NoError(t, err)
}
