package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/cart"
)

type cartResponse struct {
	Items   []cart.LineItem `json:"items"`
	Summary cart.Summary    `json:"summary"`
}

type addCartItemRequest struct {
	ProductSlug string  `json:"productSlug"`
	ColorID     string  `json:"colorId"`
	Size        float64 `json:"size"`
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, status int) {
	items, summary := h.cart.Snapshot()
	writeJSON(w, r, status, cartResponse{Items: items, Summary: summary})
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, r, http.StatusOK)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	h.cart.Clear(r.Context())
	h.writeCart(w, r, http.StatusOK)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	p, err := h.lookupProduct(r, req.ProductSlug)
	if err != nil {
		fail(w, r, err)
		return
	}
	if _, err := h.cart.AddItem(r.Context(), p, colorOf(p, req.ColorID), req.Size); err != nil {
		fail(w, r, err)
		return
	}
	h.writeCart(w, r, http.StatusCreated)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateQuantityRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Quantity == nil {
		writeError(w, r, http.StatusBadRequest, "quantity is required")
		return
	}

	id := chi.URLParam(r, "id")
	if _, ok := h.cart.Get(id); !ok {
		writeError(w, r, http.StatusNotFound, "cart item not found")
		return
	}
	h.cart.UpdateQuantity(r.Context(), id, *req.Quantity)
	h.writeCart(w, r, http.StatusOK)
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	h.cart.RemoveItem(r.Context(), chi.URLParam(r, "id"))
	h.writeCart(w, r, http.StatusOK)
}
