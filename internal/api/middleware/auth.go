package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	apiContext "mystore/internal/api/context"
	"mystore/internal/pkg/errors"
	"mystore/internal/platform/auth"
	"mystore/internal/platform/models"
)

// SessionAuthenticator confirms that a token's session is still live.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, sessionID string, userID int64) (*models.User, error)
}

type AuthMiddleware struct {
	tokenSvc *auth.TokenService
	sessions SessionAuthenticator
}

func NewAuthMiddleware(tokenSvc *auth.TokenService, sessions SessionAuthenticator) *AuthMiddleware {
	return &AuthMiddleware{tokenSvc: tokenSvc, sessions: sessions}
}

func (m *AuthMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Missing authorization header", nil)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid authorization header format", nil)
			return
		}

		claims, err := m.tokenSvc.ValidateToken(parts[1])
		if err != nil {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid or expired token", nil)
			return
		}

		user, err := m.sessions.Authenticate(r.Context(), claims.SessionID, claims.UserID)
		if err != nil {
			if !errors.Is(err, errors.ErrUnauthorized) {
				log.Error().Err(err).Msg("session lookup failed")
			}
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Session expired", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Claims, claims)
		ctx = context.WithValue(ctx, apiContext.User, user)
		next(w, r.WithContext(ctx))
	}
}

// UserFrom returns the authenticated user, or nil outside AuthMiddleware.
func UserFrom(ctx context.Context) *models.User {
	user, _ := ctx.Value(apiContext.User).(*models.User)
	return user
}

func ClaimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(apiContext.Claims).(*auth.Claims)
	return claims
}
