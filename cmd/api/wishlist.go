package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dreamkeys/policy"
)

type addWishlistRequest struct {
	PropertyID string `json:"propertyId"`
}

func (s *Server) handleAddWishlist(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.authorize(w, r, policy.Authenticated())
	if !ok {
		return
	}
	var req addWishlistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.wishlist.Add(r.Context(), sub, req.PropertyID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{Message: "added to wishlist", InsertedID: e.ID, Data: e})
}

func (s *Server) handleListWishlist(w http.ResponseWriter, r *http.Request) {
	list, err := s.wishlist.List(r.Context(), subject(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetWishlist(w http.ResponseWriter, r *http.Request) {
	e, err := s.wishlist.Get(r.Context(), subject(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleRemoveWishlist(w http.ResponseWriter, r *http.Request) {
	if err := s.wishlist.Remove(r.Context(), subject(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "removed from wishlist", "deletedCount": 1})
}
