package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"mystore/internal/api/handlers"
	"mystore/internal/api/middleware"
	"mystore/internal/engine/access"
	"mystore/internal/engine/accounts"
	"mystore/internal/engine/health"
	"mystore/internal/engine/invitations"
	"mystore/internal/engine/mail"
	"mystore/internal/engine/unsubscribe"
	"mystore/internal/platform/audit"
	"mystore/internal/platform/auth"
	"mystore/internal/platform/cache"
	"mystore/internal/platform/config"
	"mystore/internal/platform/database/dbtest"
	"mystore/internal/platform/models"
	"mystore/internal/platform/repositories"
)

type outbox struct {
	msgs []mail.Message
}

func (o *outbox) Send(ctx context.Context, msg mail.Message) error {
	o.msgs = append(o.msgs, msg)
	return nil
}

type testServer struct {
	handler  http.Handler
	db       *sql.DB
	outbox   *outbox
	accounts *accounts.Service
	tenantID int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := dbtest.New(t)
	recorder := audit.NewLogger(db)
	store := cache.NewMemoryStore()
	box := &outbox{}

	tokens := auth.NewTokenService(config.JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Minute}, "mystore")
	gate := access.NewGate(access.NewDefaultResolver(nil))
	signer := unsubscribe.NewSigner("unsubscribe-key", "https://app.example.com", time.Hour)
	dispatcher := mail.NewDispatcher(mail.DispatcherConfig{Mode: "auto", TestingProfile: true, Queue: "mail"}, box, nil, signer)

	accountSvc := accounts.NewService(db, tokens, gate.Resolver(), dispatcher, recorder, accounts.Config{
		AppURL:          "https://app.example.com",
		SessionLifetime: time.Hour,
	})
	inviteSvc := invitations.NewService(db, recorder, invitations.Config{TTLHours: 72})
	subscriptions := unsubscribe.NewService(db)

	deps := &Dependencies{
		AuthHandler:        handlers.NewAuthHandler(accountSvc),
		AccountHandler:     handlers.NewAccountHandler(accountSvc),
		UserHandler:        handlers.NewUserHandler(accountSvc, inviteSvc, gate.Resolver()),
		InvitationHandler:  handlers.NewInvitationHandler(inviteSvc, subscriptions, dispatcher, gate.Resolver(), "https://app.example.com"),
		UnsubscribeHandler: handlers.NewUnsubscribeHandler(signer, subscriptions),
		HealthHandler:      handlers.NewHealthHandler(db, health.NewRecorder(store), config.AppConfig{Name: "mystore", Env: "testing"}),
		AuthMiddleware:     middleware.NewAuthMiddleware(tokens, accountSvc),
		TenantMiddleware:   middleware.NewTenantMiddleware(repositories.NewTenantRepository(db)),
		RateLimiter:        middleware.NewRateLimiter(store),
		Gate:               gate,
		RateLimit:          config.RateLimitConfig{LoginPerMinute: 100, ForgotPerMinute: 100},
	}

	return &testServer{
		handler:  NewRouter(deps),
		db:       db,
		outbox:   box,
		accounts: accountSvc,
		tenantID: dbtest.SeedTenant(t, db, "acme", 0),
	}
}

func (s *testServer) createUser(t *testing.T, email string, tenantID *int64, roleID int64) {
	t.Helper()
	_, err := s.accounts.CreateUser(context.Background(), accounts.CreateUserRequest{
		TenantID: tenantID,
		RoleID:   &roleID,
		Email:    email,
		Name:     "User",
		Password: "password-1",
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.1:4000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	rr := s.do(t, "POST", "/api/v1/auth/login", "", map[string]string{"email": email, "password": "password-1"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", email, rr.Code, rr.Body.String())
	}
	var res struct {
		AccessToken string `json:"access_token"`
	}
	json.NewDecoder(rr.Body).Decode(&res)
	return res.AccessToken
}

func lastToken(t *testing.T, text string) string {
	t.Helper()
	i := strings.Index(text, "token=")
	if i < 0 {
		t.Fatalf("No token in %q", text)
	}
	token := text[i+len("token="):]
	if j := strings.IndexAny(token, "&\n"); j >= 0 {
		token = token[:j]
	}
	return token
}

func TestRouter_InvitationFlow(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "admin@example.com", &s.tenantID, 3)
	admin := s.login(t, "admin@example.com")
	base := fmt.Sprintf("/api/v1/tenants/%d", s.tenantID)

	rr := s.do(t, "POST", base+"/invitations", admin, map[string]interface{}{"email": "new@example.com", "role_id": 4})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "token") {
		t.Error("Expected the token to stay out of the response body")
	}
	if len(s.outbox.msgs) != 1 {
		t.Fatalf("Expected invitation mail, got %d", len(s.outbox.msgs))
	}
	invite := s.outbox.msgs[0]
	if invite.To != "new@example.com" || invite.Headers["List-Unsubscribe"] == "" {
		t.Errorf("Unexpected invitation mail: %+v", invite)
	}
	token := lastToken(t, invite.Text)

	rr = s.do(t, "GET", base+"/invitations", admin, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "new@example.com") {
		t.Errorf("Expected invitation listed, got %d: %s", rr.Code, rr.Body.String())
	}

	accept := map[string]string{"token": token, "name": "New Member", "password": "password-1"}
	rr = s.do(t, "POST", "/api/v1/invitations/accept", "", accept)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201 on accept, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = s.do(t, "POST", "/api/v1/invitations/accept", "", accept)
	if rr.Code != http.StatusUnprocessableEntity || !strings.Contains(rr.Body.String(), "INVALID_OR_EXPIRED_TOKEN") {
		t.Errorf("Expected 422 on reuse, got %d: %s", rr.Code, rr.Body.String())
	}

	// The new member is an editor and cannot manage users.
	editor := s.login(t, "new@example.com")
	if rr := s.do(t, "GET", base+"/users", editor, nil); rr.Code != http.StatusForbidden {
		t.Errorf("Expected editor to get 403, got %d", rr.Code)
	}
	if rr := s.do(t, "GET", base+"/users", admin, nil); rr.Code != http.StatusOK {
		t.Errorf("Expected admin to list users, got %d", rr.Code)
	}
}

func TestRouter_TenantAdminCannotGrantAboveOwnRole(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "admin@example.com", &s.tenantID, 3)
	admin := s.login(t, "admin@example.com")
	base := fmt.Sprintf("/api/v1/tenants/%d", s.tenantID)
	newUser := func(email string, roleID int64) map[string]interface{} {
		return map[string]interface{}{"email": email, "name": "N", "password": "password-1", "role_id": roleID}
	}

	if rr := s.do(t, "POST", base+"/users", admin, newUser("root2@example.com", 1)); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for platform role, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := s.do(t, "POST", base+"/users", admin, newUser("owner@example.com", 2)); rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for owner role, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := s.do(t, "POST", base+"/users", admin, newUser("ghost@example.com", 99)); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown role, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := s.do(t, "POST", base+"/users", admin, newUser("peer@example.com", 3)); rr.Code != http.StatusCreated {
		t.Errorf("Expected 201 for admin role, got %d: %s", rr.Code, rr.Body.String())
	}

	var count int
	s.db.QueryRow(`SELECT COUNT(1) FROM users WHERE email IN ('root2@example.com', 'owner@example.com', 'ghost@example.com')`).Scan(&count)
	if count != 0 {
		t.Errorf("Expected rejected users not to exist, found %d", count)
	}

	if rr := s.do(t, "POST", base+"/invitations", admin, map[string]interface{}{"email": "o@example.com", "role_id": 2}); rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 inviting an owner, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr := s.do(t, "POST", base+"/invitations", admin, map[string]interface{}{"email": "p@example.com", "role_id": 1}); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 inviting a platform admin, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(s.outbox.msgs) != 0 {
		t.Errorf("Expected no invitation mail, got %d", len(s.outbox.msgs))
	}
}

func TestRouter_AcceptKeepsEarlierOptOut(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "admin@example.com", &s.tenantID, 3)
	admin := s.login(t, "admin@example.com")
	ctx := context.Background()

	subscriptions := unsubscribe.NewService(s.db)
	subscriptions.Subscribe(ctx, "quiet@example.com")
	if found, _ := subscriptions.Unsubscribe(ctx, "quiet@example.com"); !found {
		t.Fatal("Expected opt-out to be recorded")
	}

	rr := s.do(t, "POST", fmt.Sprintf("/api/v1/tenants/%d/invitations", s.tenantID), admin, map[string]interface{}{"email": "quiet@example.com", "role_id": 5})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	token := lastToken(t, s.outbox.msgs[0].Text)
	rr = s.do(t, "POST", "/api/v1/invitations/accept", "", map[string]string{"token": token, "name": "Quiet", "password": "password-1"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201 on accept, got %d: %s", rr.Code, rr.Body.String())
	}

	var status string
	s.db.QueryRow(`SELECT status FROM subscribers WHERE email = ?`, "quiet@example.com").Scan(&status)
	if status != models.SubscriberStatusUnsubscribed {
		t.Errorf("Expected opt-out to survive acceptance, got %q", status)
	}
}

func TestRouter_TenantIsolationAndPlatformAdmin(t *testing.T) {
	s := newTestServer(t)
	other := dbtest.SeedTenant(t, s.db, "other", 0)
	s.createUser(t, "admin@example.com", &s.tenantID, 3)
	s.createUser(t, "root@example.com", nil, 1)
	admin := s.login(t, "admin@example.com")
	root := s.login(t, "root@example.com")

	if rr := s.do(t, "GET", fmt.Sprintf("/api/v1/tenants/%d/users", other), admin, nil); rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 across tenants, got %d", rr.Code)
	}
	if rr := s.do(t, "GET", "/api/v1/tenants/abc/users", admin, nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for malformed tenant id, got %d", rr.Code)
	}
	if rr := s.do(t, "GET", fmt.Sprintf("/api/v1/tenants/%d/users", other), root, nil); rr.Code != http.StatusOK {
		t.Errorf("Expected super admin bypass, got %d", rr.Code)
	}

	if rr := s.do(t, "GET", "/api/v1/admin/users", admin, nil); rr.Code != http.StatusForbidden {
		t.Errorf("Expected tenant admin to be kept out of platform admin, got %d", rr.Code)
	}
	rr := s.do(t, "POST", "/api/v1/admin/users", root, map[string]interface{}{
		"email": "ops@example.com", "name": "Ops", "password": "password-1", "role_id": 3, "tenant_id": other,
	})
	if rr.Code != http.StatusCreated {
		t.Errorf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouter_SeatLimit(t *testing.T) {
	s := newTestServer(t)
	dbtest.MustExec(t, s.db, `UPDATE tenants SET seat_limit = 1 WHERE id = ?`, s.tenantID)
	s.createUser(t, "admin@example.com", &s.tenantID, 3)
	admin := s.login(t, "admin@example.com")

	rr := s.do(t, "POST", fmt.Sprintf("/api/v1/tenants/%d/invitations", s.tenantID), admin, map[string]interface{}{"email": "x@example.com", "role_id": 4})
	if rr.Code != http.StatusConflict || !strings.Contains(rr.Body.String(), "QUOTA_EXCEEDED") {
		t.Errorf("Expected quota error, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouter_AccountAndLogout(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "me@example.com", &s.tenantID, 4)
	token := s.login(t, "me@example.com")

	rr := s.do(t, "PATCH", "/api/v1/account", token, map[string]string{"name": "Renamed"})
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Renamed") {
		t.Errorf("Expected profile update, got %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "password") {
		t.Error("Expected password hash to stay out of responses")
	}

	if rr := s.do(t, "POST", "/api/v1/auth/logout", token, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("Expected 204 on logout, got %d", rr.Code)
	}
	if rr := s.do(t, "GET", "/api/v1/account", token, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected token of ended session to be rejected, got %d", rr.Code)
	}
}

func TestRouter_OneClickUnsubscribe(t *testing.T) {
	s := newTestServer(t)
	s.createUser(t, "reader@example.com", &s.tenantID, 5)
	dbtest.MustExec(t, s.db, `INSERT INTO subscribers (email, status, created_at, updated_at) VALUES ('reader@example.com', 'subscribed', 0, 0)`)

	rr := s.do(t, "POST", "/api/v1/auth/password/forgot", "", map[string]string{"email": "reader@example.com"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rr.Code)
	}
	header := s.outbox.msgs[0].Headers["List-Unsubscribe"]
	link, err := url.Parse(strings.Trim(header, "<>"))
	if err != nil {
		t.Fatalf("bad link %q: %v", header, err)
	}

	tampered := link.Query()
	tampered.Set("email", "someone@example.com")
	req := httptest.NewRequest("POST", link.Path+"?"+tampered.Encode(), strings.NewReader("List-Unsubscribe=One-Click"))
	rr = httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for tampered link, got %d", rr.Code)
	}

	req = httptest.NewRequest("POST", link.Path+"?"+link.RawQuery, strings.NewReader("List-Unsubscribe=One-Click"))
	rr = httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.Len() != 0 {
		t.Errorf("Expected empty 200, got %d %q", rr.Code, rr.Body.String())
	}

	var status string
	s.db.QueryRow(`SELECT status FROM subscribers WHERE email = 'reader@example.com'`).Scan(&status)
	if status != "unsubscribed" {
		t.Errorf("Expected unsubscribed, got %s", status)
	}
}

func TestRouter_ConfirmedUnsubscribe(t *testing.T) {
	s := newTestServer(t)
	signer := unsubscribe.NewSigner("unsubscribe-key", "https://app.example.com", time.Hour)
	dbtest.MustExec(t, s.db, `INSERT INTO subscribers (email, status, created_at, updated_at) VALUES ('reader@example.com', 'subscribed', 0, 0)`)
	values := signer.Values("reader@example.com")

	rr := s.do(t, "GET", "/unsubscribe?"+values.Encode(), "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "form_token") {
		t.Fatalf("Expected confirmation form, got %d", rr.Code)
	}

	form := url.Values{}
	for k := range values {
		form.Set(k, values.Get(k))
	}
	post := func(f url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/unsubscribe", strings.NewReader(f.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		s.handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := post(form); rr.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without form token, got %d", rr.Code)
	}

	form.Set("form_token", signer.FormToken(values.Get("signature")))
	rr = post(form)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "You have been unsubscribed") {
		t.Errorf("Expected success page, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = post(form)
	if !strings.Contains(rr.Body.String(), "no active subscription") {
		t.Errorf("Expected not-found page on repeat, got %s", rr.Body.String())
	}
}

func TestRouter_Probes(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, "GET", "/up", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Errorf("Expected /up ok, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = s.do(t, "GET", "/health", "", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected degraded health without heartbeats, got %d", rr.Code)
	}

	if rr := s.do(t, "GET", "/metrics", "", nil); rr.Code != http.StatusOK {
		t.Errorf("Expected metrics endpoint, got %d", rr.Code)
	}
}
