// Package checkout turns the cart into an order in a single call.
package checkout

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
)

// Sentinel errors for checkout validation.
var (
	ErrEmptyCart               = errors.New("cart is empty")
	ErrDeliveryAddressRequired = errors.New("delivery address required")
	ErrPaymentMethodRequired   = errors.New("payment method required")
)

// Cart is the cart surface checkout needs.
type Cart interface {
	Snapshot() ([]cart.LineItem, cart.Summary)
	RemoveLines(ctx context.Context, lines []cart.LineItem)
}

// Orders is the order history surface checkout needs.
type Orders interface {
	FindByOrderNumber(number string) (order.Order, bool)
	CreateOrderOnce(ctx context.Context, spec order.Spec) (order.Order, bool, error)
}

// Request holds the buyer supplied checkout details.
type Request struct {
	// OrderNumber defaults to ORD-<unix millis> when empty.
	OrderNumber       string
	DeliveryAddress   string
	PaymentMethod     string
	EstimatedDelivery string
}

// Service places orders from the cart.
type Service struct {
	cart   Cart
	orders Orders
	now    func() time.Time
	lg     *zap.Logger
}

// NewService creates a checkout Service. A nil now selects the wall clock.
func NewService(c Cart, orders Orders, now func() time.Time, lg *zap.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		cart:   c,
		orders: orders,
		now:    now,
		lg:     lg.Named("checkout"),
	}
}

// Checkout records an order for the current cart contents and then removes
// exactly the ordered lines from the cart; anything added meanwhile stays.
// Repeating a checkout with the same order number returns the recorded order
// with created set to false and leaves the cart alone. If the order cannot
// be created the cart is untouched.
func (s *Service) Checkout(ctx context.Context, req Request) (order.Order, bool, error) {
	if req.OrderNumber != "" {
		if o, ok := s.orders.FindByOrderNumber(req.OrderNumber); ok {
			s.lg.Info("Checkout replayed", zap.String("order_number", o.OrderNumber))
			return o, false, nil
		}
	}

	if strings.TrimSpace(req.DeliveryAddress) == "" {
		return order.Order{}, false, ErrDeliveryAddressRequired
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		return order.Order{}, false, ErrPaymentMethodRequired
	}

	lines, summary := s.cart.Snapshot()
	if len(lines) == 0 {
		return order.Order{}, false, ErrEmptyCart
	}

	number := req.OrderNumber
	if number == "" {
		number = "ORD-" + strconv.FormatInt(s.now().UnixMilli(), 10)
	}

	items := make([]order.Item, len(lines))
	for i, l := range lines {
		items[i] = order.Item{
			ID:          l.ID,
			ProductName: l.Name,
			Quantity:    l.Quantity,
			Price:       l.Price,
			ImageURL:    l.ImageURL,
			Color:       l.Color.Name,
			Size:        l.Size,
		}
	}

	o, created, err := s.orders.CreateOrderOnce(ctx, order.Spec{
		OrderNumber:       number,
		Items:             items,
		TotalAmount:       summary.Total,
		DeliveryAddress:   strings.TrimSpace(req.DeliveryAddress),
		PaymentMethod:     strings.TrimSpace(req.PaymentMethod),
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		return order.Order{}, false, errors.Wrap(err, "create order")
	}
	if !created {
		return o, false, nil
	}

	s.cart.RemoveLines(ctx, lines)
	s.lg.Info("Checkout completed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Int("items", summary.ItemCount),
	)
	return o, true, nil
}
