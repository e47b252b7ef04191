// Package order keeps the order history and drives the order status
// progression.
package order

import (
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems          = errors.New("items required")
	ErrInvalidQuantity     = errors.New("quantity must be greater than 0")
	ErrOrderNumberRequired = errors.New("order number required")
	ErrNegativeTotal       = errors.New("total amount must not be negative")
	ErrUnknownStatus       = errors.New("unknown order status")
)

// Status is the lifecycle state of an order.
type Status string

// Order statuses. Cancelled is reachable only through Store.Cancel.
const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var progression = []Status{
	StatusPending,
	StatusConfirmed,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
}

// ParseStatus converts s to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st == StatusCancelled || slices.Contains(progression, st) {
		return st, nil
	}
	return "", errors.Wrapf(ErrUnknownStatus, "%q", s)
}

// Next returns the status one step further along the progression. It
// returns false for terminal and unknown statuses.
func (s Status) Next() (Status, bool) {
	i := slices.Index(progression, s)
	if i < 0 || i == len(progression)-1 {
		return "", false
	}
	return progression[i+1], true
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s Status) String() string { return string(s) }

// Item is a line of an order, copied from the cart at creation.
type Item struct {
	ID          string          `json:"id"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"imageUrl"`
	Color       string          `json:"color"`
	Size        float64         `json:"size"`
}

// Order is a placed order. Items never change after creation.
type Order struct {
	ID                string          `json:"id"`
	OrderNumber       string          `json:"orderNumber"`
	Status            Status          `json:"status"`
	Date              time.Time       `json:"date"`
	Items             []Item          `json:"items"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	DeliveryAddress   string          `json:"deliveryAddress"`
	PaymentMethod     string          `json:"paymentMethod"`
	EstimatedDelivery string          `json:"estimatedDelivery,omitempty"`
	TrackingNumber    string          `json:"trackingNumber,omitempty"`
}

func (o Order) clone() Order {
	o.Items = slices.Clone(o.Items)
	return o
}

// Spec is the caller supplied part of a new order.
type Spec struct {
	OrderNumber       string
	Items             []Item
	TotalAmount       decimal.Decimal
	DeliveryAddress   string
	PaymentMethod     string
	EstimatedDelivery string
}

// Validate checks that the spec describes a placeable order.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.OrderNumber) == "" {
		return ErrOrderNumberRequired
	}
	if len(s.Items) == 0 {
		return ErrEmptyItems
	}
	for _, it := range s.Items {
		if it.Quantity <= 0 {
			return errors.Wrapf(ErrInvalidQuantity, "item %s", it.ID)
		}
	}
	if s.TotalAmount.IsNegative() {
		return ErrNegativeTotal
	}
	return nil
}
