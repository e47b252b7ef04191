// Package handler exposes the storefront stores over a JSON HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/favorite"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const maxBodyBytes = 1 << 20

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Deps are the stores and services the Handler serves.
type Deps struct {
	Catalog   catalog.Provider
	Cart      *cart.Store
	Favorites *favorite.Store
	Orders    *order.Store
	Checkout  *checkout.Service
}

// Handler serves the /api routes.
type Handler struct {
	catalog      catalog.Provider
	cart         *cart.Store
	favorites    *favorite.Store
	orders       *order.Store
	checkout     *checkout.Service
	imageBaseURL string
}

// New constructs a Handler.
func New(cfg Config, deps Deps) *Handler {
	return &Handler{
		catalog:      deps.Catalog,
		cart:         deps.Cart,
		favorites:    deps.Favorites,
		orders:       deps.Orders,
		checkout:     deps.Checkout,
		imageBaseURL: strings.TrimRight(cfg.ImageBaseURL, "/"),
	}
}

// Routes mounts the API on r. Request logging and route labelling run inside
// the router so the matched pattern is known.
func (h *Handler) Routes(r chi.Router) {
	r.Use(httpmiddleware.LogRequests(), httpmiddleware.Labeler())
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", h.listProducts)
		r.Get("/products/{slug}", h.getProduct)

		r.Get("/cart", h.getCart)
		r.Delete("/cart", h.clearCart)
		r.Post("/cart/items", h.addCartItem)
		r.Patch("/cart/items/{id}", h.updateCartItem)
		r.Delete("/cart/items/{id}", h.removeCartItem)

		r.Get("/favorites", h.listFavorites)
		r.Delete("/favorites", h.clearFavorites)
		r.Post("/favorites", h.addFavorite)
		r.Post("/favorites/toggle", h.toggleFavorite)
		r.Get("/favorites/contains", h.containsFavorite)
		r.Delete("/favorites/{id}", h.removeFavorite)

		r.Get("/orders", h.listOrders)
		r.Post("/orders", h.createOrder)
		r.Post("/orders/purge-duplicates", h.purgeDuplicates)
		r.Get("/orders/{id}", h.getOrder)
		r.Post("/orders/{id}/advance", h.advanceOrder)
		r.Post("/orders/{id}/cancel", h.cancelOrder)

		r.Post("/checkout", h.placeCheckout)
	})
}

// errInvalidBody marks request bodies that are not the expected JSON.
var errInvalidBody = errors.New("invalid request body")

func decode(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("%w: %s", errInvalidBody, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Debug("Write response failed", zap.Error(err))
	}
}

// writeError responds with {"code": status, "message": msg}.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(e.Bytes()); err != nil {
		zctx.From(r.Context()).Debug("Write response failed", zap.Error(err))
	}
}

// fail maps domain errors to API errors. Unknown errors are logged and
// reported as 500 without detail.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errInvalidBody),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrOrderNumberRequired),
		errors.Is(err, order.ErrNegativeTotal),
		errors.Is(err, checkout.ErrDeliveryAddressRequired),
		errors.Is(err, checkout.ErrPaymentMethodRequired):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, cart.ErrUnknownColor),
		errors.Is(err, cart.ErrUnknownSize),
		errors.Is(err, checkout.ErrEmptyCart):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, r, http.StatusServiceUnavailable, "request cancelled")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
