package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
)

type createOrderRequest struct {
	OrderNumber       string          `json:"orderNumber"`
	Items             []order.Item    `json:"items"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	DeliveryAddress   string          `json:"deliveryAddress"`
	PaymentMethod     string          `json:"paymentMethod"`
	EstimatedDelivery string          `json:"estimatedDelivery"`
}

type checkoutRequest struct {
	OrderNumber       string `json:"orderNumber"`
	DeliveryAddress   string `json:"deliveryAddress"`
	PaymentMethod     string `json:"paymentMethod"`
	EstimatedDelivery string `json:"estimatedDelivery"`
}

type purgeResponse struct {
	Removed int `json:"removed"`
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.orders.Orders())
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.orders.GetByID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, r, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, r, http.StatusOK, o)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), order.Spec{
		OrderNumber:       req.OrderNumber,
		Items:             req.Items,
		TotalAmount:       req.TotalAmount,
		DeliveryAddress:   req.DeliveryAddress,
		PaymentMethod:     req.PaymentMethod,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, r, status, o)
}

func (h *Handler) advanceOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.AdvanceStatus)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.orders.Cancel)
}

// transition responds 404 for unknown orders and 409 when the order is
// already terminal.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id string) (order.Order, bool)) {
	id := chi.URLParam(r, "id")
	o, ok := apply(r.Context(), id)
	if ok {
		writeJSON(w, r, http.StatusOK, o)
		return
	}
	if _, found := h.orders.GetByID(id); !found {
		writeError(w, r, http.StatusNotFound, "order not found")
		return
	}
	writeError(w, r, http.StatusConflict, "order status is "+o.Status.String()+", no transition possible")
}

func (h *Handler) purgeDuplicates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, purgeResponse{Removed: h.orders.PurgeDuplicates(r.Context())})
}

func (h *Handler) placeCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	o, created, err := h.checkout.Checkout(r.Context(), checkout.Request{
		OrderNumber:       req.OrderNumber,
		DeliveryAddress:   req.DeliveryAddress,
		PaymentMethod:     req.PaymentMethod,
		EstimatedDelivery: req.EstimatedDelivery,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, r, status, o)
}
