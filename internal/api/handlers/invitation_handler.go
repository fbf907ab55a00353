package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"mystore/internal/api/middleware"
	"mystore/internal/engine/access"
	"mystore/internal/engine/accounts"
	"mystore/internal/engine/invitations"
	"mystore/internal/engine/mail"
	"mystore/internal/engine/unsubscribe"
	"mystore/internal/pkg/errors"
	"mystore/internal/platform/models"
)

type InvitationHandler struct {
	invitations   *invitations.Service
	subscriptions *unsubscribe.Service
	mailer        accounts.Mailer
	resolver      *access.Resolver
	appURL        string
}

func NewInvitationHandler(invitations *invitations.Service, subscriptions *unsubscribe.Service, mailer accounts.Mailer, resolver *access.Resolver, appURL string) *InvitationHandler {
	return &InvitationHandler{
		invitations:   invitations,
		subscriptions: subscriptions,
		mailer:        mailer,
		resolver:      resolver,
		appURL:        strings.TrimRight(appURL, "/"),
	}
}

type CreateInvitationRequest struct {
	Email    string `json:"email"`
	RoleID   int64  `json:"role_id"`
	TTLHours int    `json:"ttl_hours"`
}

type invitationList struct {
	Invitations []*models.Invitation  `json:"invitations"`
	Seats       invitations.SeatUsage `json:"seats"`
}

func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFrom(r.Context())

	list, err := h.invitations.List(r.Context(), tenant.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	seats, err := h.invitations.SeatUsage(r.Context(), tenant.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invitationList{Invitations: list, Seats: seats})
}

func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateInvitationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tenant := middleware.TenantFrom(r.Context())
	if err := h.invitations.EnsureSeatAvailable(r.Context(), tenant.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	actor := middleware.UserFrom(r.Context())
	inv, err := h.invitations.Issue(r.Context(), invitations.IssueRequest{
		TenantID:    tenant.ID,
		Email:       req.Email,
		RoleID:      req.RoleID,
		TTLHours:    req.TTLHours,
		InvitedBy:   &actor.ID,
		InviterRole: actorRole(h.resolver, actor),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.sendInvitation(r, tenant, inv)
	writeJSON(w, http.StatusCreated, inv)
}

// sendInvitation mails the accept link. Failures are logged; the invitation stands.
func (h *InvitationHandler) sendInvitation(r *http.Request, tenant *models.Tenant, inv *models.Invitation) {
	if h.mailer == nil {
		return
	}
	link := h.appURL + "/invitations/accept?" + url.Values{"token": {inv.Token}}.Encode()
	msg := mail.Message{
		Subject: fmt.Sprintf("You have been invited to %s", tenant.Name),
		Text:    fmt.Sprintf("You have been invited to join %s.\n\nAccept the invitation here:\n%s\n", tenant.Name, link),
	}
	if err := h.mailer.Deliver(r.Context(), msg, []string{inv.Email}); err != nil {
		log.Error().Err(err).Int64("invitation_id", inv.ID).Msg("failed to deliver invitation mail")
	}
}

func (h *InvitationHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := paramInt64(r, "invitation_id")
	if !ok {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Invitation not found", nil)
		return
	}

	tenant := middleware.TenantFrom(r.Context())
	if err := h.invitations.Revoke(r.Context(), tenant.ID, id, middleware.UserFrom(r.Context()).ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type AcceptInvitationRequest struct {
	Token    string `json:"token"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req AcceptInvitationRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.invitations.Accept(r.Context(), req.Token, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidOrExpiredToken) {
			errors.WriteError(w, http.StatusUnprocessableEntity, errors.ErrCodeInvalidToken, "Invitation is invalid or has expired", nil)
			return
		}
		writeServiceError(w, r, err)
		return
	}

	if h.subscriptions != nil {
		if err := h.subscriptions.Enroll(r.Context(), user.Email); err != nil {
			log.Warn().Err(err).Int64("user_id", user.ID).Msg("failed to subscribe new member")
		}
	}
	writeJSON(w, http.StatusCreated, user)
}
