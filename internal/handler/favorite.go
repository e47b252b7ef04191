package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/favorite"
)

type favoriteRequest struct {
	ProductSlug string `json:"productSlug"`
	ColorID     string `json:"colorId"`
}

type favoriteState struct {
	ID         string `json:"id"`
	IsFavorite bool   `json:"isFavorite"`
}

func (h *Handler) listFavorites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.favorites.Items())
}

func (h *Handler) clearFavorites(w http.ResponseWriter, r *http.Request) {
	h.favorites.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.lookupProduct(r, req.ProductSlug)
	if err != nil {
		fail(w, r, err)
		return
	}

	item, added := h.favorites.Add(r.Context(), p, colorOf(p, req.ColorID))
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, item)
}

func (h *Handler) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.lookupProduct(r, req.ProductSlug)
	if err != nil {
		fail(w, r, err)
		return
	}

	color := colorOf(p, req.ColorID)
	on := h.favorites.Toggle(r.Context(), p, color)
	writeJSON(w, r, http.StatusOK, favoriteState{ID: favorite.Key(p.Slug, color.ID), IsFavorite: on})
}

func (h *Handler) containsFavorite(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("productSlug")
	if slug == "" {
		writeError(w, r, http.StatusBadRequest, "productSlug is required")
		return
	}
	colorID := r.URL.Query().Get("colorId")
	writeJSON(w, r, http.StatusOK, favoriteState{
		ID:         favorite.Key(slug, colorID),
		IsFavorite: h.favorites.IsFavorite(slug, colorID),
	})
}

func (h *Handler) removeFavorite(w http.ResponseWriter, r *http.Request) {
	h.favorites.Remove(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}
