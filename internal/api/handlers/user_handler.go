package handlers

import (
	"net/http"

	"mystore/internal/api/middleware"
	"mystore/internal/engine/access"
	"mystore/internal/engine/accounts"
	"mystore/internal/engine/invitations"
	"mystore/internal/platform/models"
)

type UserHandler struct {
	accounts    *accounts.Service
	invitations *invitations.Service
	resolver    *access.Resolver
}

func NewUserHandler(accounts *accounts.Service, invitations *invitations.Service, resolver *access.Resolver) *UserHandler {
	return &UserHandler{accounts: accounts, invitations: invitations, resolver: resolver}
}

type CreateUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	RoleID   *int64 `json:"role_id"`
	TenantID *int64 `json:"tenant_id"`
}

type userList struct {
	Users []*models.User `json:"users"`
}

func (h *UserHandler) ListTenant(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFrom(r.Context())
	users, err := h.accounts.ListUsers(r.Context(), &tenant.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userList{Users: users})
}

func (h *UserHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tenant := middleware.TenantFrom(r.Context())
	if err := h.invitations.EnsureSeatAvailable(r.Context(), tenant.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	actor := middleware.UserFrom(r.Context())
	user, err := h.accounts.CreateUser(r.Context(), accounts.CreateUserRequest{
		TenantID:  &tenant.ID,
		RoleID:    req.RoleID,
		Email:     req.Email,
		Name:      req.Name,
		Password:  req.Password,
		ActorID:   actor.ID,
		ActorRole: actorRole(h.resolver, actor),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.ListUsers(r.Context(), nil)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userList{Users: users})
}

// CreatePlatform creates a user on behalf of a platform operator, optionally
// inside a tenant.
func (h *UserHandler) CreatePlatform(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.TenantID != nil {
		if err := h.invitations.EnsureSeatAvailable(r.Context(), *req.TenantID); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	actor := middleware.UserFrom(r.Context())
	user, err := h.accounts.CreateUser(r.Context(), accounts.CreateUserRequest{
		TenantID:  req.TenantID,
		RoleID:    req.RoleID,
		Email:     req.Email,
		Name:      req.Name,
		Password:  req.Password,
		ActorID:   actor.ID,
		ActorRole: actorRole(h.resolver, actor),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}
