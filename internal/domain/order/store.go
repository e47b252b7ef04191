package order

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	trackingPrefix = "TRK"
	trackingLen    = 10

	// Sized for a local order history. Longer histories raise the false
	// positive rate, which only costs an exact scan.
	numberFilterCapacity = 1_000
	numberFilterFPR      = 0.01
)

// Persister stores the full order history.
type Persister interface {
	Load(ctx context.Context) []Order
	Save(ctx context.Context, orders []Order)
	Err() error
}

// Options configures a Store. Zero values select ULIDs and the wall clock.
type Options struct {
	Logger *zap.Logger
	NewID  func() string
	Now    func() time.Time
}

// Store owns the order history, most recent first.
type Store struct {
	persist Persister
	lg      *zap.Logger
	newID   func() string
	now     func() time.Time

	mu      sync.Mutex
	orders  []Order
	numbers *bloom.BloomFilter
	loading bool
}

// NewStore returns an empty Store that reports Loading until Load returns.
func NewStore(p Persister, opts Options) *Store {
	lg := opts.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		persist: p,
		lg:      lg.Named("order"),
		newID:   newID,
		now:     func() time.Time { return now().UTC() },
		orders:  []Order{},
		numbers: bloom.NewWithEstimates(numberFilterCapacity, numberFilterFPR),
		loading: true,
	}
}

// Load replaces the in-memory history with the persisted one.
func (s *Store) Load(ctx context.Context) {
	orders := s.persist.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = orders
	s.numbers.ClearAll()
	for _, o := range orders {
		s.numbers.AddString(o.OrderNumber)
	}
	s.loading = false
	s.lg.Debug("Orders loaded", zap.Int("orders", len(orders)))
}

// Loading reports whether Load has not completed yet.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// CreateOrder records a new pending order at the head of the history. It
// does not check for an existing order with the same number.
func (s *Store) CreateOrder(ctx context.Context, spec Spec) (Order, error) {
	if err := spec.Validate(); err != nil {
		return Order{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(ctx, spec), nil
}

// CreateOrderOnce behaves like CreateOrder unless an order with the same
// number exists, in which case that order is returned with created false.
func (s *Store) CreateOrderOnce(ctx context.Context, spec Spec) (o Order, created bool, err error) {
	if err := spec.Validate(); err != nil {
		return Order{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexByNumber(spec.OrderNumber); i >= 0 {
		return s.orders[i].clone(), false, nil
	}
	return s.create(ctx, spec), true, nil
}

func (s *Store) create(ctx context.Context, spec Spec) Order {
	id := s.newID()
	o := Order{
		ID:                id,
		OrderNumber:       spec.OrderNumber,
		Status:            StatusPending,
		Date:              s.now(),
		Items:             slices.Clone(spec.Items),
		TotalAmount:       spec.TotalAmount,
		DeliveryAddress:   spec.DeliveryAddress,
		PaymentMethod:     spec.PaymentMethod,
		EstimatedDelivery: spec.EstimatedDelivery,
		TrackingNumber:    trackingNumber(s.newID()),
	}

	s.orders = slices.Insert(s.orders, 0, o)
	s.numbers.AddString(o.OrderNumber)
	s.lg.Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Int("items", len(o.Items)),
		zap.Stringer("total", o.TotalAmount),
	)
	s.save(ctx)
	return o.clone()
}

// trackingNumber takes the trailing characters of a ULID, which belong to
// its random component.
func trackingNumber(id string) string {
	if len(id) > trackingLen {
		id = id[len(id)-trackingLen:]
	}
	return trackingPrefix + id
}

// AdvanceStatus moves the order one step along the progression. It returns
// false when the order is unknown or already terminal.
func (s *Store) AdvanceStatus(ctx context.Context, id string) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return Order{}, false
	}
	from := s.orders[i].Status
	next, ok := from.Next()
	if !ok {
		return s.orders[i].clone(), false
	}
	return s.transition(ctx, i, next), true
}

// Cancel moves a non-terminal order to cancelled. It returns false when the
// order is unknown or already terminal.
func (s *Store) Cancel(ctx context.Context, id string) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return Order{}, false
	}
	if s.orders[i].Status.Terminal() {
		return s.orders[i].clone(), false
	}
	return s.transition(ctx, i, StatusCancelled), true
}

func (s *Store) transition(ctx context.Context, i int, to Status) Order {
	from := s.orders[i].Status
	s.orders[i].Status = to
	s.lg.Info("Order status changed",
		zap.String("order_id", s.orders[i].ID),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	s.save(ctx)
	return s.orders[i].clone()
}

// GetByID returns the order with the given id.
func (s *Store) GetByID(id string) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		return s.orders[i].clone(), true
	}
	return Order{}, false
}

// FindByOrderNumber returns the first order in history order carrying number.
func (s *Store) FindByOrderNumber(number string) (Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexByNumber(number); i >= 0 {
		return s.orders[i].clone(), true
	}
	return Order{}, false
}

// Orders returns a copy of the history, most recent first.
func (s *Store) Orders() []Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Order, len(s.orders))
	for i, o := range s.orders {
		out[i] = o.clone()
	}
	return out
}

// PurgeDuplicates keeps the first order for every order number and drops the
// rest. It persists only when something was removed and returns the number
// of removed orders.
func (s *Store) PurgeDuplicates(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(s.orders))
	kept := s.orders[:0:0]
	for _, o := range s.orders {
		if _, dup := seen[o.OrderNumber]; dup {
			continue
		}
		seen[o.OrderNumber] = struct{}{}
		kept = append(kept, o)
	}

	removed := len(s.orders) - len(kept)
	if removed == 0 {
		return 0
	}
	s.orders = kept
	s.lg.Info("Duplicate orders purged", zap.Int("removed", removed))
	s.save(ctx)
	return removed
}

// Err returns the result of the latest persistence attempt.
func (s *Store) Err() error {
	return s.persist.Err()
}

func (s *Store) index(id string) int {
	return slices.IndexFunc(s.orders, func(o Order) bool { return o.ID == id })
}

// indexByNumber consults the filter first; a negative answer is exact.
func (s *Store) indexByNumber(number string) int {
	if !s.numbers.TestString(number) {
		return -1
	}
	return slices.IndexFunc(s.orders, func(o Order) bool { return o.OrderNumber == number })
}

func (s *Store) save(ctx context.Context) {
	out := make([]Order, len(s.orders))
	for i, o := range s.orders {
		out[i] = o.clone()
	}
	s.persist.Save(ctx, out)
}
