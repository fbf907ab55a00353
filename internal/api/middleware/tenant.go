package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	apiContext "mystore/internal/api/context"
	"mystore/internal/pkg/errors"
	"mystore/internal/platform/models"
	"mystore/internal/platform/repositories"
)

// TenantMiddleware resolves the :tenant_id route parameter. Identifiers are
// coerced to int64 here so the authorization gate only ever compares integers.
type TenantMiddleware struct {
	tenants *repositories.TenantRepository
}

func NewTenantMiddleware(tenants *repositories.TenantRepository) *TenantMiddleware {
	return &TenantMiddleware{tenants: tenants}
}

func (m *TenantMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ps, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
		id, err := strconv.ParseInt(ps.ByName("tenant_id"), 10, 64)
		if err != nil || id <= 0 {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Tenant not found", nil)
			return
		}

		tenant, err := m.tenants.GetByID(r.Context(), id)
		if err != nil {
			errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load tenant", nil)
			return
		}
		if tenant == nil {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Tenant not found", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Tenant, tenant)
		next(w, r.WithContext(ctx))
	}
}

// TenantFrom returns the tenant resolved by TenantMiddleware, or nil.
func TenantFrom(ctx context.Context) *models.Tenant {
	tenant, _ := ctx.Value(apiContext.Tenant).(*models.Tenant)
	return tenant
}
