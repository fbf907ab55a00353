// Package accounts covers sign-in, sessions, profile and password management,
// and administrative user creation.
package accounts

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mystore/internal/engine/access"
	"mystore/internal/engine/mail"
	"mystore/internal/pkg/errors"
	"mystore/internal/pkg/useragent"
	"mystore/internal/pkg/validator"
	"mystore/internal/platform/audit"
	"mystore/internal/platform/auth"
	"mystore/internal/platform/database"
	"mystore/internal/platform/models"
	"mystore/internal/platform/repositories"
)

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", errors.ErrUnauthorized)
	ErrAccountSuspended   = fmt.Errorf("%w: account suspended", errors.ErrUnauthorized)
	ErrSessionExpired     = fmt.Errorf("%w: session expired", errors.ErrUnauthorized)
	ErrInvalidRole        = fmt.Errorf("%w: platform role cannot be held by a tenant user", errors.ErrValidationFailed)
	ErrRoleNotGrantable   = fmt.Errorf("%w: role is above the creator's own", errors.ErrForbidden)
	ErrEmailTaken         = fmt.Errorf("%w: email already in use", errors.ErrConflict)
	ErrWrongPassword      = fmt.Errorf("%w: current password is incorrect", errors.ErrValidationFailed)
	ErrInvalidResetToken  = fmt.Errorf("%w: password reset token", errors.ErrInvalidOrExpiredToken)
	ErrUserNotFound       = fmt.Errorf("%w: user", errors.ErrNotFound)
)

// Mailer is satisfied by *mail.Dispatcher.
type Mailer interface {
	Deliver(ctx context.Context, msg mail.Message, recipients []string) error
}

type Config struct {
	AppURL          string
	SessionLifetime time.Duration
	ResetTTL        time.Duration
}

type Service struct {
	users    *repositories.UserRepository
	sessions *repositories.SessionRepository
	roles    *repositories.RoleRepository
	resets   *repositories.PasswordResetRepository
	tokens   *auth.TokenService
	resolver *access.Resolver
	mailer   Mailer
	recorder audit.Recorder
	cfg      Config
	now      func() time.Time
}

func NewService(db database.DBTX, tokens *auth.TokenService, resolver *access.Resolver, mailer Mailer, recorder audit.Recorder, cfg Config) *Service {
	if cfg.SessionLifetime <= 0 {
		cfg.SessionLifetime = 2 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	return &Service{
		users:    repositories.NewUserRepository(db),
		sessions: repositories.NewSessionRepository(db),
		roles:    repositories.NewRoleRepository(db),
		resets:   repositories.NewPasswordResetRepository(db),
		tokens:   tokens,
		resolver: resolver,
		mailer:   mailer,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
	}
}

type LoginRequest struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

type LoginResult struct {
	AccessToken string       `json:"access_token"`
	SessionID   string       `json:"-"`
	User        *models.User `json:"user"`
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email, err := validator.NormalizeEmail(req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == "" || !auth.CheckPassword(user.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}
	if user.Status == models.UserStatusSuspended {
		return nil, ErrAccountSuspended
	}
	if user.Status != models.UserStatusActive {
		return nil, ErrInvalidCredentials
	}

	now := s.now().Unix()
	session := &models.Session{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		IPAddress:    req.IPAddress,
		UserAgent:    truncate(req.UserAgent, 512),
		LastActivity: now,
		CreatedAt:    now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	role, _ := s.resolver.Resolve(user)
	token, err := s.tokens.GenerateAccessToken(session.ID, user.ID, user.TenantID, role, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		log.Warn().Err(err).Int64("user_id", user.ID).Msg("failed to record last login")
	}
	user.LastLoginAt = &now

	log.Info().
		Int64("user_id", user.ID).
		Str("ip", req.IPAddress).
		Str("device", useragent.Parse(req.UserAgent).String()).
		Msg("user signed in")

	return &LoginResult{AccessToken: token, SessionID: session.ID, User: user}, nil
}

// Authenticate confirms that sessionID is live for userID, refreshes its
// activity stamp and returns the user with the role relation loaded.
func (s *Service) Authenticate(ctx context.Context, sessionID string, userID int64) (*models.User, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.UserID != userID {
		return nil, ErrSessionExpired
	}

	now := s.now()
	if now.Sub(time.Unix(session.LastActivity, 0)) > s.cfg.SessionLifetime {
		if err := s.sessions.Delete(ctx, sessionID); err != nil {
			log.Warn().Err(err).Msg("failed to drop stale session")
		}
		return nil, ErrSessionExpired
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Status != models.UserStatusActive {
		return nil, ErrSessionExpired
	}

	if err := s.sessions.Touch(ctx, sessionID, now.Unix()); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Delete(ctx, sessionID)
}

// PruneSessions removes sessions idle for longer than the session lifetime.
func (s *Service) PruneSessions(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.SessionLifetime).Unix()
	return s.sessions.PruneInactive(ctx, cutoff)
}

func (s *Service) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID int64, name, email string) (*models.User, error) {
	name, err := validator.Name(name)
	if err != nil {
		return nil, err
	}
	email, err = validator.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.ID != userID {
		return nil, ErrEmailTaken
	}

	if err := s.users.UpdateProfile(ctx, userID, name, email); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

// UpdatePassword changes the password and signs out every other session.
func (s *Service) UpdatePassword(ctx context.Context, userID int64, sessionID, current, next string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(user.PasswordHash, current) {
		return ErrWrongPassword
	}
	if err := validator.Password(next); err != nil {
		return err
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	return s.sessions.DeleteForUser(ctx, userID, sessionID)
}

// RequestPasswordReset mails a reset link when email belongs to a user. It
// reports success either way.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := validator.NormalizeEmail(email)
	if err != nil {
		return nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil || user.Status == models.UserStatusSuspended {
		return nil
	}

	plain, hash, err := auth.NewOpaqueToken()
	if err != nil {
		return err
	}
	if err := s.resets.Put(ctx, &models.PasswordReset{Email: email, TokenHash: hash, CreatedAt: s.now().Unix()}); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := strings.TrimRight(s.cfg.AppURL, "/") + "/password/reset?" + url.Values{"email": {email}, "token": {plain}}.Encode()
	msg := mail.Message{
		Subject: "Reset your password",
		Text: fmt.Sprintf("Use the link below to choose a new password. It expires in %d minutes.\n\n%s\n",
			int(s.cfg.ResetTTL.Minutes()), link),
	}
	if s.mailer != nil {
		if err := s.mailer.Deliver(ctx, msg, []string{email}); err != nil {
			log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to deliver password reset mail")
		}
	}
	return nil
}

func (s *Service) ResetPassword(ctx context.Context, email, token, password string) error {
	if err := validator.Password(password); err != nil {
		return err
	}
	email, err := validator.NormalizeEmail(email)
	if err != nil {
		return ErrInvalidResetToken
	}

	reset, err := s.resets.Get(ctx, email)
	if err != nil {
		return err
	}
	if reset == nil || !auth.TokenMatches(token, reset.TokenHash) {
		return ErrInvalidResetToken
	}
	if s.now().Sub(time.Unix(reset.CreatedAt, 0)) > s.cfg.ResetTTL {
		return ErrInvalidResetToken
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrInvalidResetToken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	if err := s.resets.Delete(ctx, email); err != nil {
		return err
	}
	if err := s.sessions.DeleteForUser(ctx, user.ID, ""); err != nil {
		return err
	}

	audit.TryRecord(ctx, s.recorder, models.AuditLog{
		ActorID:     user.ID,
		Action:      audit.ActionPasswordReset,
		SubjectType: "user",
		SubjectID:   user.ID,
	})
	return nil
}

type CreateUserRequest struct {
	TenantID *int64
	RoleID   *int64
	Email    string
	Name     string
	Password string
	ActorID  int64

	// ActorRole is the resolved role of ActorID. When ActorID is set the
	// granted role may not exceed it.
	ActorRole string
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	email, err := validator.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	name, err := validator.Name(req.Name)
	if err != nil {
		return nil, err
	}
	if err := validator.Password(req.Password); err != nil {
		return nil, err
	}
	if req.TenantID != nil && req.RoleID == nil {
		return nil, fmt.Errorf("%w: role_id is required for tenant users", errors.ErrValidationFailed)
	}
	if err := s.checkGrant(ctx, req); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		TenantID:     req.TenantID,
		RoleID:       req.RoleID,
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Status:       models.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	meta := map[string]interface{}{"email": email}
	if req.TenantID != nil {
		meta["tenant_id"] = *req.TenantID
	}
	audit.TryRecord(ctx, s.recorder, models.AuditLog{
		ActorID:     req.ActorID,
		Action:      audit.ActionUserCreated,
		SubjectType: "user",
		SubjectID:   user.ID,
		Meta:        meta,
	})

	return s.GetUser(ctx, user.ID)
}

func (s *Service) checkGrant(ctx context.Context, req CreateUserRequest) error {
	granted := ""
	if req.RoleID != nil {
		role, err := s.roles.GetByID(ctx, *req.RoleID)
		if err != nil {
			return err
		}
		if role == nil {
			return fmt.Errorf("%w: unknown role %d", errors.ErrValidationFailed, *req.RoleID)
		}
		granted = access.CodeOf(role)
		if req.TenantID != nil && granted == access.RolePlatformSuperAdmin {
			return ErrInvalidRole
		}
	}
	if req.ActorID != 0 && granted != "" && !access.CanGrant(req.ActorRole, granted) {
		return ErrRoleNotGrantable
	}
	return nil
}

// ListUsers lists one tenant's users, or all users when tenantID is nil.
func (s *Service) ListUsers(ctx context.Context, tenantID *int64) ([]*models.User, error) {
	return s.users.List(ctx, tenantID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
