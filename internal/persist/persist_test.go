package persist

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xenking/storefront/internal/storage"
	"github.com/xenking/storefront/internal/storage/memory"
)

type item struct {
	ID  string `json:"id"`
	Qty int    `json:"qty"`
}

// faultKV wraps a memory store with switchable failures and an optional gate
// that blocks Set until released.
type faultKV struct {
	*memory.Store
	setErr    error
	removeErr error
	sets      atomic.Int32
	gate      chan struct{}
	entered   chan struct{}
	gateOnce  sync.Once
}

func newFaultKV() *faultKV {
	return &faultKV{Store: memory.New()}
}

func (f *faultKV) Set(ctx context.Context, key string, value []byte) error {
	f.sets.Add(1)
	if f.gate != nil {
		f.gateOnce.Do(func() { close(f.entered) })
		<-f.gate
	}
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.Set(ctx, key, value)
}

func (f *faultKV) Remove(ctx context.Context, key string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.Store.Remove(ctx, key)
}

func newCollection(t *testing.T, kv storage.KV, mode Mode, lg *zap.Logger) *Collection[item] {
	t.Helper()
	c, err := New[item](kv, storage.KeyCart, Options{Mode: mode, Logger: lg})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAsync, m)

	m, err = ParseMode("sync")
	require.NoError(t, err)
	assert.Equal(t, ModeSync, m)

	_, err = ParseMode("eventually")
	require.Error(t, err)
}

func TestCollection_LoadMissing(t *testing.T) {
	c := newCollection(t, memory.New(), ModeSync, nil)

	items := c.Load(context.Background())
	require.NotNil(t, items)
	assert.Empty(t, items)
}

func TestCollection_LoadMalformed(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "not json", value: "{{{"},
		{name: "object", value: `{"id":"a"}`},
		{name: "string", value: `"cart"`},
		{name: "wrong element type", value: `[1,2,3]`},
		{name: "truncated", value: `[{"id":"a"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			kv := memory.New()
			require.NoError(t, kv.Set(context.Background(), storage.KeyCart, []byte(tt.value)))
			c := newCollection(t, kv, ModeSync, zap.New(core))

			items := c.Load(context.Background())
			require.NotNil(t, items)
			assert.Empty(t, items)
			assert.Equal(t, 1, logs.Len())
		})
	}
}

func TestCollection_LoadEmptyArray(t *testing.T) {
	kv := memory.New()
	require.NoError(t, kv.Set(context.Background(), storage.KeyCart, []byte(`[]`)))
	c := newCollection(t, kv, ModeSync, nil)

	items := c.Load(context.Background())
	require.NotNil(t, items)
	assert.Empty(t, items)
}

func TestCollection_SyncRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	c := newCollection(t, kv, ModeSync, nil)

	want := []item{{ID: "a", Qty: 1}, {ID: "b", Qty: 3}}
	c.Save(ctx, want)
	require.NoError(t, c.Err())

	raw, err := kv.Get(ctx, storage.KeyCart)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a","qty":1},{"id":"b","qty":3}]`, string(raw))

	assert.Equal(t, want, c.Load(ctx))
}

func TestCollection_SaveNilWritesEmptyArray(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	c := newCollection(t, kv, ModeSync, nil)

	c.Save(ctx, nil)

	raw, err := kv.Get(ctx, storage.KeyCart)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestCollection_AsyncFlush(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	c := newCollection(t, kv, ModeAsync, nil)

	for i := 1; i <= 5; i++ {
		c.Save(ctx, []item{{ID: "a", Qty: i}})
	}
	require.NoError(t, c.Flush(ctx))

	assert.Equal(t, []item{{ID: "a", Qty: 5}}, c.Load(ctx))
}

func TestCollection_AsyncCoalesces(t *testing.T) {
	ctx := context.Background()
	kv := newFaultKV()
	kv.gate = make(chan struct{})
	kv.entered = make(chan struct{})
	c := newCollection(t, kv, ModeAsync, nil)

	c.Save(ctx, []item{{ID: "a", Qty: 1}})
	<-kv.entered // writer is blocked inside the first Set

	c.Save(ctx, []item{{ID: "a", Qty: 2}})
	c.Save(ctx, []item{{ID: "a", Qty: 3}})
	c.Save(ctx, []item{{ID: "a", Qty: 4}})
	close(kv.gate)

	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, int32(2), kv.sets.Load(), "pending snapshots collapse into one write")
	assert.Equal(t, []item{{ID: "a", Qty: 4}}, c.Load(ctx))
}

func TestCollection_FlushHonoursContext(t *testing.T) {
	kv := newFaultKV()
	kv.gate = make(chan struct{})
	kv.entered = make(chan struct{})
	c := newCollection(t, kv, ModeAsync, nil)
	defer close(kv.gate)

	c.Save(context.Background(), []item{{ID: "a"}})
	<-kv.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, c.Flush(ctx), context.DeadlineExceeded)
}

func TestCollection_WriteFailureRecorded(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.ErrorLevel)
	kv := newFaultKV()
	kv.setErr = errors.New("disk full")
	c := newCollection(t, kv, ModeSync, zap.New(core))

	c.Save(ctx, []item{{ID: "a"}})
	require.Error(t, c.Err())
	assert.Contains(t, c.Err().Error(), "disk full")
	assert.Equal(t, 1, logs.FilterMessage("Write failed, in-memory state kept").Len())

	kv.setErr = nil
	c.Save(ctx, []item{{ID: "a"}})
	assert.NoError(t, c.Err())
}

func TestCollection_Purge(t *testing.T) {
	ctx := context.Background()

	t.Run("removes key", func(t *testing.T) {
		kv := newFaultKV()
		c := newCollection(t, kv, ModeSync, nil)
		c.Save(ctx, []item{{ID: "a"}})

		c.Purge(ctx)
		require.NoError(t, c.Err())
		_, err := kv.Get(ctx, storage.KeyCart)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("falls back to empty array", func(t *testing.T) {
		kv := newFaultKV()
		kv.removeErr = errors.New("permission denied")
		c := newCollection(t, kv, ModeSync, nil)
		c.Save(ctx, []item{{ID: "a"}})

		c.Purge(ctx)
		require.NoError(t, c.Err())
		raw, err := kv.Get(ctx, storage.KeyCart)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(raw))
	})

	t.Run("both fail", func(t *testing.T) {
		kv := newFaultKV()
		kv.removeErr = errors.New("permission denied")
		kv.setErr = errors.New("read-only")
		c := newCollection(t, kv, ModeSync, nil)

		c.Purge(ctx)
		require.Error(t, c.Err())
	})

	t.Run("async purge is ordered after pending saves", func(t *testing.T) {
		kv := newFaultKV()
		c := newCollection(t, kv, ModeAsync, nil)
		c.Save(ctx, []item{{ID: "a"}})
		c.Purge(ctx)
		require.NoError(t, c.Flush(ctx))

		_, err := kv.Get(ctx, storage.KeyCart)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestCollection_SaveAfterClose(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	c, err := New[item](kv, storage.KeyCart, Options{Mode: ModeAsync})
	require.NoError(t, err)

	c.Save(ctx, []item{{ID: "a", Qty: 1}})
	c.Close()
	c.Close()

	assert.Equal(t, []item{{ID: "a", Qty: 1}}, c.Load(ctx), "close drains pending writes")

	c.Save(ctx, []item{{ID: "a", Qty: 2}})
	assert.Equal(t, []item{{ID: "a", Qty: 2}}, c.Load(ctx), "saves after close are synchronous")
	require.NoError(t, c.Flush(ctx))
}
