package handlers

import (
	"net/http"

	"mystore/internal/api/middleware"
	"mystore/internal/engine/accounts"
)

type AccountHandler struct {
	accounts *accounts.Service
}

func NewAccountHandler(accounts *accounts.Service) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, middleware.UserFrom(r.Context()))
}

type UpdateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user := middleware.UserFrom(r.Context())
	if req.Name == "" {
		req.Name = user.Name
	}
	if req.Email == "" {
		req.Email = user.Email
	}

	updated, err := h.accounts.UpdateProfile(r.Context(), user.ID, req.Name, req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	Password        string `json:"password"`
}

func (h *AccountHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req UpdatePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user := middleware.UserFrom(r.Context())
	claims := middleware.ClaimsFrom(r.Context())
	if err := h.accounts.UpdatePassword(r.Context(), user.ID, claims.SessionID, req.CurrentPassword, req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
