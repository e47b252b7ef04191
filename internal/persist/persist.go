// Package persist keeps a JSON-array collection in sync with a storage.KV key.
//
// A Collection never fails its caller: read failures load as an empty
// collection and write failures are logged and reported through Err. In
// ModeAsync writes are handed to a single background writer that coalesces
// pending snapshots, so the stored value always converges to the newest one.
package persist

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/storage"
)

const instrumentation = "github.com/xenking/storefront/internal/persist"

// Mode selects when a Save reaches storage.
type Mode string

const (
	// ModeAsync returns immediately; the snapshot is written by a background
	// writer. Use Flush to wait for it.
	ModeAsync Mode = "async"
	// ModeSync writes before Save returns.
	ModeSync Mode = "sync"
)

// ParseMode validates a configured mode. Empty means ModeAsync.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAsync:
		return ModeAsync, nil
	case ModeSync:
		return ModeSync, nil
	default:
		return "", errors.Errorf("unknown persist mode %q", s)
	}
}

// Options configures a Collection.
type Options struct {
	Mode           Mode
	Logger         *zap.Logger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

type op struct {
	ctx   context.Context
	data  []byte
	purge bool
}

// Collection persists a slice of T under a single key.
type Collection[T any] struct {
	kv   storage.KV
	key  string
	mode Mode
	lg   *zap.Logger

	tracer   trace.Tracer
	writes   metric.Int64Counter
	failures metric.Int64Counter
	attrs    metric.MeasurementOption

	errMu sync.Mutex
	err   error

	mu      sync.Mutex
	next    *op
	done    bool
	wake    chan struct{}
	flush   chan chan struct{}
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// New returns a Collection for key. In ModeAsync the background writer is
// started immediately; call Close to stop it.
func New[T any](kv storage.KV, key string, opts Options) (*Collection[T], error) {
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	lg := opts.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}

	meter := mp.Meter(instrumentation)
	writes, err := meter.Int64Counter("storefront.persist.writes",
		metric.WithDescription("Collection writes attempted"))
	if err != nil {
		return nil, errors.Wrap(err, "create writes counter")
	}
	failures, err := meter.Int64Counter("storefront.persist.failures",
		metric.WithDescription("Collection writes that failed"))
	if err != nil {
		return nil, errors.Wrap(err, "create failures counter")
	}

	c := &Collection[T]{
		kv:       kv,
		key:      key,
		mode:     mode,
		lg:       lg.With(zap.String("key", key)),
		tracer:   tp.Tracer(instrumentation),
		writes:   writes,
		failures: failures,
		attrs:    metric.WithAttributes(attribute.String("key", key)),
		wake:     make(chan struct{}, 1),
		flush:    make(chan chan struct{}),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	if mode == ModeAsync {
		go c.run()
	} else {
		close(c.stopped)
	}
	return c, nil
}

// Key returns the storage key backing the collection.
func (c *Collection[T]) Key() string { return c.key }

// Load reads the stored collection. Missing, unreadable and malformed values
// all yield an empty, non-nil slice.
func (c *Collection[T]) Load(ctx context.Context) []T {
	data, err := c.kv.Get(ctx, c.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.lg.Warn("Read failed, starting empty", zap.Error(err))
		}
		return []T{}
	}
	if !isArray(data) {
		c.lg.Warn("Stored value is not a JSON array, starting empty", zap.Int("bytes", len(data)))
		return []T{}
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		c.lg.Warn("Decode failed, starting empty", zap.Error(err))
		return []T{}
	}
	if items == nil {
		items = []T{}
	}
	return items
}

func isArray(data []byte) bool {
	if !jx.Valid(data) {
		return false
	}
	return jx.DecodeBytes(data).Next() == jx.Array
}

// Save persists the full collection.
func (c *Collection[T]) Save(ctx context.Context, items []T) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		c.lg.Error("Encode failed", zap.Error(err))
		c.setErr(errors.Wrapf(err, "encode %s", c.key))
		return
	}
	c.submit(op{ctx: context.WithoutCancel(ctx), data: data})
}

// Purge removes the key. When removal fails an empty array is written
// instead so no stale collection survives a restart.
func (c *Collection[T]) Purge(ctx context.Context) {
	c.submit(op{ctx: context.WithoutCancel(ctx), purge: true})
}

func (c *Collection[T]) submit(o op) {
	if c.mode == ModeSync {
		c.apply(o)
		return
	}

	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		c.apply(o)
		return
	}
	c.next = &o
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every snapshot submitted before the call is written.
func (c *Collection[T]) Flush(ctx context.Context) error {
	if c.mode == ModeSync {
		return nil
	}
	ack := make(chan struct{})
	select {
	case c.flush <- ack:
	case <-c.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains pending writes and stops the background writer. Later saves
// are written synchronously.
func (c *Collection[T]) Close() {
	c.once.Do(func() {
		if c.mode == ModeAsync {
			close(c.quit)
		}
	})
	<-c.stopped
}

// Err returns the outcome of the most recent write, nil when it succeeded.
func (c *Collection[T]) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Collection[T]) setErr(err error) {
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
}

func (c *Collection[T]) run() {
	defer close(c.stopped)
	for {
		select {
		case <-c.wake:
			c.drain()
		case ack := <-c.flush:
			c.drain()
			close(ack)
		case <-c.quit:
			c.drain()
			c.mu.Lock()
			c.done = true
			o := c.next
			c.next = nil
			c.mu.Unlock()
			if o != nil {
				c.apply(*o)
			}
			return
		}
	}
}

func (c *Collection[T]) drain() {
	for {
		c.mu.Lock()
		o := c.next
		c.next = nil
		c.mu.Unlock()
		if o == nil {
			return
		}
		c.apply(*o)
	}
}

func (c *Collection[T]) apply(o op) {
	ctx, span := c.tracer.Start(o.ctx, "persist.Write",
		trace.WithAttributes(
			attribute.String("storage.key", c.key),
			attribute.Bool("storage.purge", o.purge),
		),
	)
	defer span.End()

	c.writes.Add(ctx, 1, c.attrs)

	var err error
	if o.purge {
		err = c.purge(ctx)
	} else {
		err = c.kv.Set(ctx, c.key, o.data)
	}
	if err != nil {
		err = errors.Wrapf(err, "write %s", c.key)
		c.failures.Add(ctx, 1, c.attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		c.lg.Error("Write failed, in-memory state kept", zap.Error(err))
	}
	c.setErr(err)
}

func (c *Collection[T]) purge(ctx context.Context) error {
	err := c.kv.Remove(ctx, c.key)
	if err == nil {
		return nil
	}
	c.lg.Warn("Remove failed, writing empty collection", zap.Error(err))
	if setErr := c.kv.Set(ctx, c.key, []byte("[]")); setErr != nil {
		return errors.Wrap(setErr, "write empty collection")
	}
	return nil
}
