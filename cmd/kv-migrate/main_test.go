package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/storage"
)

func TestRun_FileToFile(t *testing.T) {
	ctx := context.Background()
	srcDir, dstDir := t.TempDir(), t.TempDir()

	src, _, err := openKV(ctx, "file:"+srcDir)
	require.NoError(t, err)
	require.NoError(t, src.Set(ctx, storage.KeyCart, []byte(`[{"id":"a::","quantity":2}]`)))
	require.NoError(t, src.Set(ctx, storage.KeyFavorites, []byte(`{"not":"an array"}`)))
	require.NoError(t, src.Set(ctx, storage.KeyOrders, []byte(`[
		{"id":"1","orderNumber":"ORD-1","status":"pending","items":[],"totalAmount":"10"},
		{"id":"2","orderNumber":"ORD-1","status":"pending","items":[],"totalAmount":"10"},
		{"id":"3","orderNumber":"ORD-2","status":"pending","items":[],"totalAmount":"5"}
	]`)))

	require.NoError(t, run(ctx, "file:"+srcDir, "file:"+dstDir, true))

	dst, _, err := openKV(ctx, "file:"+dstDir)
	require.NoError(t, err)

	cart, err := dst.Get(ctx, storage.KeyCart)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a::","quantity":2}]`, string(cart))

	_, err = dst.Get(ctx, storage.KeyFavorites)
	require.ErrorIs(t, err, storage.ErrNotFound, "non-array values are not copied")

	orders, err := dst.Get(ctx, storage.KeyOrders)
	require.NoError(t, err)
	assert.NotContains(t, string(orders), `"id":"2"`)
	assert.Contains(t, string(orders), `"id":"1"`)
	assert.Contains(t, string(orders), `"id":"3"`)
}

func TestOpenKV_Unsupported(t *testing.T) {
	_, _, err := openKV(context.Background(), "redis://localhost")
	require.Error(t, err)
}
