package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "mystore/internal/api/context"
	"mystore/internal/api/handlers"
	"mystore/internal/api/middleware"
	"mystore/internal/engine/access"
	"mystore/internal/pkg/metrics"
	"mystore/internal/platform/config"
)

type Dependencies struct {
	AuthHandler        *handlers.AuthHandler
	AccountHandler     *handlers.AccountHandler
	UserHandler        *handlers.UserHandler
	InvitationHandler  *handlers.InvitationHandler
	UnsubscribeHandler *handlers.UnsubscribeHandler
	HealthHandler      *handlers.HealthHandler
	AuthMiddleware     *middleware.AuthMiddleware
	TenantMiddleware   *middleware.TenantMiddleware
	RateLimiter        *middleware.RateLimiter
	Gate               *access.Gate
	CORS               config.CORSConfig
	RateLimit          config.RateLimitConfig
}

type middlewareFunc = func(http.HandlerFunc) http.HandlerFunc

func NewRouter(deps *Dependencies) http.Handler {
	router := httprouter.New()
	handle := func(method, path string, handler http.HandlerFunc, middlewares ...middlewareFunc) {
		router.Handle(method, path, chain(path, handler, middlewares...))
	}

	// Probes
	handle(http.MethodGet, "/up", deps.HealthHandler.Up)
	handle(http.MethodGet, "/health", deps.HealthHandler.Check)
	router.Handler(http.MethodGet, "/metrics", metrics.Handler())

	authMid := deps.AuthMiddleware.Handle
	tenantMid := deps.TenantMiddleware.Handle
	manageTenant := middleware.RequireAbility(deps.Gate, access.AbilityManageTenantUsers)
	managePlatform := middleware.RequireAbility(deps.Gate, access.AbilityManagePlatformUsers)

	// Authentication
	handle(http.MethodPost, "/api/v1/auth/login", deps.AuthHandler.Login,
		deps.RateLimiter.Limit("login", deps.RateLimit.LoginPerMinute))
	handle(http.MethodPost, "/api/v1/auth/logout", deps.AuthHandler.Logout, authMid)
	handle(http.MethodPost, "/api/v1/auth/password/forgot", deps.AuthHandler.ForgotPassword,
		deps.RateLimiter.Limit("forgot", deps.RateLimit.ForgotPerMinute))
	handle(http.MethodPost, "/api/v1/auth/password/reset", deps.AuthHandler.ResetPassword,
		deps.RateLimiter.Limit("forgot", deps.RateLimit.ForgotPerMinute))
	handle(http.MethodPost, "/api/v1/invitations/accept", deps.InvitationHandler.Accept,
		deps.RateLimiter.Limit("accept", deps.RateLimit.LoginPerMinute))

	// Own account
	handle(http.MethodGet, "/api/v1/account", deps.AccountHandler.Get, authMid)
	handle(http.MethodPatch, "/api/v1/account", deps.AccountHandler.Update, authMid)
	handle(http.MethodPut, "/api/v1/account/password", deps.AccountHandler.UpdatePassword, authMid)

	// Tenant user management
	handle(http.MethodGet, "/api/v1/tenants/:tenant_id/users", deps.UserHandler.ListTenant, authMid, tenantMid, manageTenant)
	handle(http.MethodPost, "/api/v1/tenants/:tenant_id/users", deps.UserHandler.CreateTenant, authMid, tenantMid, manageTenant)
	handle(http.MethodGet, "/api/v1/tenants/:tenant_id/invitations", deps.InvitationHandler.List, authMid, tenantMid, manageTenant)
	handle(http.MethodPost, "/api/v1/tenants/:tenant_id/invitations", deps.InvitationHandler.Create, authMid, tenantMid, manageTenant)
	handle(http.MethodDelete, "/api/v1/tenants/:tenant_id/invitations/:invitation_id", deps.InvitationHandler.Revoke, authMid, tenantMid, manageTenant)

	// Platform administration
	handle(http.MethodGet, "/api/v1/admin/users", deps.UserHandler.ListAll, authMid, managePlatform)
	handle(http.MethodPost, "/api/v1/admin/users", deps.UserHandler.CreatePlatform, authMid, managePlatform)

	// Unsubscribe
	handle(http.MethodGet, "/unsubscribe", deps.UnsubscribeHandler.Confirm)
	handle(http.MethodPost, "/unsubscribe", deps.UnsubscribeHandler.Submit)
	handle(http.MethodGet, "/unsubscribe/one-click", deps.UnsubscribeHandler.OneClick)
	handle(http.MethodPost, "/unsubscribe/one-click", deps.UnsubscribeHandler.OneClick)

	return middleware.CORS(deps.CORS, router)
}

// chain applies middlewares in order around handler and instruments the result
// under the route pattern.
func chain(route string, handler http.HandlerFunc, middlewares ...middlewareFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(metrics.Instrument(route, handler))
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
