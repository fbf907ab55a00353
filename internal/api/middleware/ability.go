package middleware

import (
	"net/http"

	"mystore/internal/engine/access"
	"mystore/internal/pkg/errors"
)

// RequireAbility rejects requests whose user the gate does not allow. When a
// tenant was resolved from the route, the ability is checked against it.
func RequireAbility(gate *access.Gate, ability string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			user := UserFrom(r.Context())
			if user == nil {
				errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Authentication required", nil)
				return
			}

			var tenantID *int64
			if tenant := TenantFrom(r.Context()); tenant != nil {
				tenantID = &tenant.ID
			}

			if !gate.Allows(user, ability, tenantID) {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}
