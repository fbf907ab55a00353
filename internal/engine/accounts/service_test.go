package accounts

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"mystore/internal/engine/access"
	"mystore/internal/engine/mail"
	"mystore/internal/pkg/errors"
	"mystore/internal/platform/audit"
	"mystore/internal/platform/auth"
	"mystore/internal/platform/config"
	"mystore/internal/platform/database/dbtest"
)

type captureMailer struct {
	msgs []mail.Message
	to   []string
}

func (m *captureMailer) Deliver(ctx context.Context, msg mail.Message, recipients []string) error {
	m.msgs = append(m.msgs, msg)
	m.to = append(m.to, recipients...)
	return nil
}

type fixture struct {
	svc      *Service
	db       *sql.DB
	mailer   *captureMailer
	tokens   *auth.TokenService
	tenantID int64
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	f := &fixture{
		db:       db,
		mailer:   &captureMailer{},
		tokens:   auth.NewTokenService(config.JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Minute}, "mystore"),
		tenantID: dbtest.SeedTenant(t, db, "acme", 0),
		clock:    time.Unix(1700000000, 0),
	}
	f.svc = NewService(db, f.tokens, access.NewDefaultResolver(nil), f.mailer, audit.NewLogger(db), Config{
		AppURL:          "https://app.example.com",
		SessionLifetime: time.Hour,
		ResetTTL:        time.Hour,
	})
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) createUser(t *testing.T, email, password string) int64 {
	t.Helper()
	roleID := int64(3)
	user, err := f.svc.CreateUser(context.Background(), CreateUserRequest{
		TenantID: &f.tenantID,
		RoleID:   &roleID,
		Email:    email,
		Name:     "Test User",
		Password: password,
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return user.ID
}

func TestService_LoginIssuesSessionToken(t *testing.T) {
	f := newFixture(t)
	userID := f.createUser(t, "admin@example.com", "password-1")

	res, err := f.svc.Login(context.Background(), LoginRequest{Email: "Admin@Example.com", Password: "password-1", IPAddress: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	claims, err := f.tokens.ValidateToken(res.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID != userID || claims.SessionID != res.SessionID || claims.Role != access.RoleTenantAdmin {
		t.Errorf("Unexpected claims: %+v", claims)
	}
	if claims.TenantID == nil || *claims.TenantID != f.tenantID {
		t.Errorf("Expected tenant claim %d, got %v", f.tenantID, claims.TenantID)
	}

	user, err := f.svc.Authenticate(context.Background(), res.SessionID, userID)
	if err != nil || user.ID != userID {
		t.Errorf("Expected live session, got user=%v err=%v", user, err)
	}
}

func TestService_LoginFailures(t *testing.T) {
	f := newFixture(t)
	userID := f.createUser(t, "user@example.com", "password-1")
	ctx := context.Background()

	if _, err := f.svc.Login(ctx, LoginRequest{Email: "user@example.com", Password: "wrong-pass"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "password-1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	dbtest.MustExec(t, f.db, `UPDATE users SET status = 'suspended' WHERE id = ?`, userID)
	_, err := f.svc.Login(ctx, LoginRequest{Email: "user@example.com", Password: "password-1"})
	if !errors.Is(err, ErrAccountSuspended) || !errors.Is(err, errors.ErrUnauthorized) {
		t.Errorf("Expected ErrAccountSuspended, got %v", err)
	}
}

func TestService_SessionLifetime(t *testing.T) {
	f := newFixture(t)
	userID := f.createUser(t, "idle@example.com", "password-1")
	ctx := context.Background()

	res, err := f.svc.Login(ctx, LoginRequest{Email: "idle@example.com", Password: "password-1"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	f.clock = f.clock.Add(50 * time.Minute)
	if _, err := f.svc.Authenticate(ctx, res.SessionID, userID); err != nil {
		t.Fatalf("Expected session within lifetime, got %v", err)
	}

	// Activity was refreshed, so another 50 minutes is still fine.
	f.clock = f.clock.Add(50 * time.Minute)
	if _, err := f.svc.Authenticate(ctx, res.SessionID, userID); err != nil {
		t.Fatalf("Expected touched session to stay live, got %v", err)
	}

	f.clock = f.clock.Add(61 * time.Minute)
	if _, err := f.svc.Authenticate(ctx, res.SessionID, userID); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Expected ErrSessionExpired, got %v", err)
	}

	if _, err := f.svc.Authenticate(ctx, "missing", userID); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Expected ErrSessionExpired for unknown session, got %v", err)
	}
}

func TestService_LogoutAndPrune(t *testing.T) {
	f := newFixture(t)
	userID := f.createUser(t, "out@example.com", "password-1")
	ctx := context.Background()

	first, _ := f.svc.Login(ctx, LoginRequest{Email: "out@example.com", Password: "password-1"})
	if err := f.svc.Logout(ctx, first.SessionID); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, first.SessionID, userID); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Expected logged out session to be gone, got %v", err)
	}

	f.svc.Login(ctx, LoginRequest{Email: "out@example.com", Password: "password-1"})
	f.clock = f.clock.Add(2 * time.Hour)
	n, err := f.svc.PruneSessions(ctx)
	if err != nil || n != 1 {
		t.Errorf("Expected 1 pruned session, got n=%d err=%v", n, err)
	}
}

func TestService_UpdatePasswordDropsOtherSessions(t *testing.T) {
	f := newFixture(t)
	userID := f.createUser(t, "pw@example.com", "password-1")
	ctx := context.Background()

	keep, _ := f.svc.Login(ctx, LoginRequest{Email: "pw@example.com", Password: "password-1"})
	other, _ := f.svc.Login(ctx, LoginRequest{Email: "pw@example.com", Password: "password-1"})

	if err := f.svc.UpdatePassword(ctx, userID, keep.SessionID, "wrong-one", "password-2"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("Expected ErrWrongPassword, got %v", err)
	}
	if err := f.svc.UpdatePassword(ctx, userID, keep.SessionID, "password-1", "short"); !errors.Is(err, errors.ErrValidationFailed) {
		t.Errorf("Expected validation error, got %v", err)
	}
	if err := f.svc.UpdatePassword(ctx, userID, keep.SessionID, "password-1", "password-2"); err != nil {
		t.Fatalf("UpdatePassword() error = %v", err)
	}

	if _, err := f.svc.Authenticate(ctx, keep.SessionID, userID); err != nil {
		t.Errorf("Expected current session to survive, got %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, other.SessionID, userID); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Expected other session to be dropped, got %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginRequest{Email: "pw@example.com", Password: "password-2"}); err != nil {
		t.Errorf("Expected new password to work, got %v", err)
	}
}

func resetToken(t *testing.T, m *captureMailer) string {
	t.Helper()
	if len(m.msgs) == 0 {
		t.Fatal("Expected a reset mail")
	}
	text := m.msgs[len(m.msgs)-1].Text
	i := strings.Index(text, "token=")
	if i < 0 {
		t.Fatalf("No token in mail: %q", text)
	}
	token := text[i+len("token="):]
	if j := strings.IndexAny(token, "&\n"); j >= 0 {
		token = token[:j]
	}
	return token
}

func TestService_PasswordReset(t *testing.T) {
	f := newFixture(t)
	userID := f.createUser(t, "forgot@example.com", "password-1")
	ctx := context.Background()

	if err := f.svc.RequestPasswordReset(ctx, "unknown@example.com"); err != nil {
		t.Errorf("Expected silent success for unknown address, got %v", err)
	}
	if len(f.mailer.msgs) != 0 {
		t.Fatalf("Expected no mail for unknown address, got %d", len(f.mailer.msgs))
	}

	session, _ := f.svc.Login(ctx, LoginRequest{Email: "forgot@example.com", Password: "password-1"})
	if err := f.svc.RequestPasswordReset(ctx, "forgot@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	if f.mailer.to[0] != "forgot@example.com" {
		t.Errorf("Expected mail to forgot@example.com, got %v", f.mailer.to)
	}
	token := resetToken(t, f.mailer)

	if err := f.svc.ResetPassword(ctx, "forgot@example.com", "bogus", "password-9"); !errors.Is(err, errors.ErrInvalidOrExpiredToken) {
		t.Errorf("Expected invalid token error, got %v", err)
	}
	if err := f.svc.ResetPassword(ctx, "forgot@example.com", token, "password-9"); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, session.SessionID, userID); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("Expected sessions to be dropped after reset, got %v", err)
	}
	if err := f.svc.ResetPassword(ctx, "forgot@example.com", token, "password-10"); !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("Expected token to be single use, got %v", err)
	}

	entries, _ := audit.NewLogger(f.db).ListForSubject(ctx, "user", userID)
	found := false
	for _, e := range entries {
		if e.Action == audit.ActionPasswordReset {
			found = true
		}
	}
	if !found {
		t.Error("Expected password reset to be audited")
	}
}

func TestService_PasswordResetExpires(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "late@example.com", "password-1")
	ctx := context.Background()

	f.svc.RequestPasswordReset(ctx, "late@example.com")
	token := resetToken(t, f.mailer)

	f.clock = f.clock.Add(61 * time.Minute)
	if err := f.svc.ResetPassword(ctx, "late@example.com", token, "password-9"); !errors.Is(err, ErrInvalidResetToken) {
		t.Errorf("Expected expired reset token, got %v", err)
	}
}

func TestService_CreateUserAndProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.createUser(t, "first@example.com", "password-1")
	f.createUser(t, "second@example.com", "password-1")

	_, err := f.svc.CreateUser(ctx, CreateUserRequest{Email: "first@example.com", Name: "Dup", Password: "password-1"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("Expected ErrEmailTaken, got %v", err)
	}
	_, err = f.svc.CreateUser(ctx, CreateUserRequest{TenantID: &f.tenantID, Email: "norole@example.com", Name: "X", Password: "password-1"})
	if !errors.Is(err, errors.ErrValidationFailed) {
		t.Errorf("Expected tenant user without role to be rejected, got %v", err)
	}

	if _, err := f.svc.UpdateProfile(ctx, id, "Renamed", "second@example.com"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("Expected ErrEmailTaken on profile update, got %v", err)
	}
	user, err := f.svc.UpdateProfile(ctx, id, "Renamed", "FIRST@example.com")
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if user.Name != "Renamed" || user.Email != "first@example.com" {
		t.Errorf("Unexpected profile: %+v", user)
	}

	users, err := f.svc.ListUsers(ctx, &f.tenantID)
	if err != nil || len(users) != 2 {
		t.Errorf("Expected 2 tenant users, got %d err=%v", len(users), err)
	}
}

func TestService_CreateUserChecksGrantedRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	role := func(id int64) *int64 { return &id }

	tests := []struct {
		name      string
		tenantID  *int64
		roleID    *int64
		actorRole string
		wantErr   error
	}{
		{"admin creates editor", &f.tenantID, role(4), access.RoleTenantAdmin, nil},
		{"admin creates owner", &f.tenantID, role(2), access.RoleTenantAdmin, ErrRoleNotGrantable},
		{"admin creates super admin", &f.tenantID, role(1), access.RoleTenantAdmin, ErrInvalidRole},
		{"super admin puts super admin in tenant", &f.tenantID, role(1), access.RolePlatformSuperAdmin, ErrInvalidRole},
		{"unknown role", &f.tenantID, role(99), access.RoleTenantOwner, errors.ErrValidationFailed},
		{"super admin creates platform super admin", nil, role(1), access.RolePlatformSuperAdmin, nil},
		{"owner creates platform super admin", nil, role(1), access.RoleTenantOwner, ErrRoleNotGrantable},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateUser(ctx, CreateUserRequest{
				TenantID:  tt.tenantID,
				RoleID:    tt.roleID,
				Email:     "grant" + string(rune('a'+i)) + "@example.com",
				Name:      "Grant",
				Password:  "password-1",
				ActorID:   1,
				ActorRole: tt.actorRole,
			})
			if tt.wantErr == nil && err != nil {
				t.Fatalf("CreateUser() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
