// Package invitations issues, accepts, revokes and expires tenant invitations.
package invitations

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"mystore/internal/engine/access"
	"mystore/internal/pkg/errors"
	"mystore/internal/pkg/metrics"
	"mystore/internal/pkg/validator"
	"mystore/internal/platform/audit"
	"mystore/internal/platform/auth"
	"mystore/internal/platform/models"
	"mystore/internal/platform/repositories"
)

const (
	DefaultTTLHours  = 72
	DefaultBatchSize = 100

	subjectType = "invitation"
)

var (
	ErrInvalidToken     = fmt.Errorf("%w: invitation not found or already used", errors.ErrInvalidOrExpiredToken)
	ErrExpired          = fmt.Errorf("%w: invitation has expired", errors.ErrInvalidOrExpiredToken)
	ErrNotPending       = fmt.Errorf("%w: invitation is not pending", errors.ErrConflict)
	ErrNotFound         = fmt.Errorf("%w: invitation", errors.ErrNotFound)
	ErrNoSeatsAvailable = fmt.Errorf("%w: no seats available", errors.ErrQuotaExceeded)
	ErrEmailTaken       = fmt.Errorf("%w: email belongs to another account", errors.ErrConflict)
	ErrInvalidRole      = fmt.Errorf("%w: role cannot be granted by invitation", errors.ErrValidationFailed)
	ErrRoleNotGrantable = fmt.Errorf("%w: role is above the inviter's own", errors.ErrForbidden)
)

type Config struct {
	TTLHours       int
	SystemActorID  int64
	CountSuspended bool
}

type Service struct {
	db       *sql.DB
	invites  *repositories.InvitationRepository
	users    *repositories.UserRepository
	tenants  *repositories.TenantRepository
	roles    *repositories.RoleRepository
	recorder audit.Recorder
	cfg      Config
	now      func() time.Time
}

func NewService(db *sql.DB, recorder audit.Recorder, cfg Config) *Service {
	if cfg.TTLHours <= 0 {
		cfg.TTLHours = DefaultTTLHours
	}
	return &Service{
		db:       db,
		invites:  repositories.NewInvitationRepository(db),
		users:    repositories.NewUserRepository(db),
		tenants:  repositories.NewTenantRepository(db),
		roles:    repositories.NewRoleRepository(db),
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type IssueRequest struct {
	TenantID  int64
	Email     string
	RoleID    int64
	TTLHours  int
	InvitedBy *int64

	// InviterRole is the resolved role of InvitedBy. The granted role may not
	// exceed it.
	InviterRole string
}

// Issue creates a pending invitation. The returned invitation carries the plain
// token in Token; only its hash is stored.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*models.Invitation, error) {
	email, err := validator.NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}

	tenant, err := s.tenants.GetByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, fmt.Errorf("%w: tenant %d", errors.ErrNotFound, req.TenantID)
	}

	role, err := s.roles.GetByID(ctx, req.RoleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return nil, fmt.Errorf("%w: unknown role %d", errors.ErrValidationFailed, req.RoleID)
	}
	code := access.CodeOf(role)
	if code == access.RolePlatformSuperAdmin {
		return nil, ErrInvalidRole
	}
	if req.InvitedBy != nil && !access.CanGrant(req.InviterRole, code) {
		return nil, ErrRoleNotGrantable
	}

	ttl := req.TTLHours
	if ttl <= 0 {
		ttl = s.cfg.TTLHours
	}

	plain, hash, err := auth.NewOpaqueToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	expiresAt := now.Add(time.Duration(ttl) * time.Hour).Unix()
	inv := &models.Invitation{
		TenantID:  req.TenantID,
		Email:     email,
		TokenHash: hash,
		RoleID:    req.RoleID,
		InvitedBy: req.InvitedBy,
		Status:    models.InvitationStatusPending,
		ExpiresAt: &expiresAt,
		CreatedAt: now.Unix(),
		UpdatedAt: now.Unix(),
	}
	if err := s.invites.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	inv.Token = plain

	metrics.InvitationsIssued.Inc()
	s.record(ctx, s.actor(req.InvitedBy), audit.ActionInviteCreated, inv, map[string]interface{}{
		"email":     inv.Email,
		"tenant_id": inv.TenantID,
		"role_id":   inv.RoleID,
	})

	log.Info().Int64("invitation_id", inv.ID).Int64("tenant_id", inv.TenantID).Msg("invitation issued")
	return inv, nil
}

// Accept consumes a pending invitation and returns the created or activated user.
// An expired invitation is rejected without changing its status.
func (s *Service) Accept(ctx context.Context, token, name, password string) (*models.User, error) {
	name, err := validator.Name(name)
	if err != nil {
		return nil, err
	}
	if err := validator.Password(password); err != nil {
		return nil, err
	}

	inv, err := s.invites.GetPendingByTokenHash(ctx, auth.HashToken(token))
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvalidToken
	}

	now := s.now().Unix()
	if inv.ExpiresAt != nil && now > *inv.ExpiresAt {
		return nil, ErrExpired
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ok, err := s.invites.WithTx(tx).Transition(ctx, inv.ID, models.InvitationStatusAccepted, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidToken
	}

	users := s.users.WithTx(tx)
	user, err := users.GetByEmail(ctx, inv.Email)
	if err != nil {
		return nil, err
	}

	tenantID, roleID := inv.TenantID, inv.RoleID
	created := user == nil
	if created {
		user = &models.User{
			TenantID:     &tenantID,
			RoleID:       &roleID,
			Email:        inv.Email,
			Name:         name,
			PasswordHash: passwordHash,
			Status:       models.UserStatusActive,
		}
		if err := users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
	} else {
		// A user already bound to another tenant, or an active platform user,
		// keeps its binding.
		sameTenant := user.TenantID != nil && *user.TenantID == tenantID
		unbound := user.TenantID == nil && user.Status == models.UserStatusPending
		if !sameTenant && !unbound {
			return nil, ErrEmailTaken
		}
		user.TenantID, user.RoleID = &tenantID, &roleID
		user.Name, user.PasswordHash = name, passwordHash
		if err := users.Activate(ctx, user); err != nil {
			return nil, fmt.Errorf("activate user: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	metrics.InvitationsAccepted.Inc()
	inv.Status = models.InvitationStatusAccepted
	inv.AcceptedAt = &now
	s.record(ctx, user.ID, audit.ActionInviteAccepted, inv, map[string]interface{}{
		"email":     inv.Email,
		"tenant_id": inv.TenantID,
		"user_id":   user.ID,
		"created":   created,
	})

	loaded, err := s.users.GetByID(ctx, user.ID)
	if err != nil || loaded == nil {
		return user, nil
	}
	return loaded, nil
}

type ExpireOptions struct {
	BatchSize int
	DryRun    bool
	// Visit is called for every candidate in dry-run mode and for every
	// invitation actually expired in live mode.
	Visit func(inv models.Invitation)
}

// ExpireDue moves every pending invitation whose deadline is at or before now
// to expired and returns how many were moved. In dry-run mode it returns the
// number of candidates and writes nothing.
func (s *Service) ExpireDue(ctx context.Context, now time.Time, opts ExpireOptions) (int, error) {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	cutoff := now.Unix()

	var afterID int64
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		due, err := s.invites.ListDue(ctx, cutoff, afterID, batch)
		if err != nil {
			return count, fmt.Errorf("list due invitations: %w", err)
		}

		for _, inv := range due {
			afterID = inv.ID

			if opts.DryRun {
				count++
				if opts.Visit != nil {
					opts.Visit(*inv)
				}
				continue
			}

			ok, err := s.invites.Transition(ctx, inv.ID, models.InvitationStatusExpired, cutoff)
			if err != nil {
				return count, fmt.Errorf("expire invitation %d: %w", inv.ID, err)
			}
			if !ok {
				continue
			}
			count++
			inv.Status = models.InvitationStatusExpired
			metrics.InvitationsExpired.Inc()

			s.record(ctx, s.cfg.SystemActorID, audit.ActionInviteExpired, inv, map[string]interface{}{
				"email":     inv.Email,
				"tenant_id": inv.TenantID,
				"system":    true,
			})
			if opts.Visit != nil {
				opts.Visit(*inv)
			}
		}

		if len(due) < batch {
			break
		}
	}

	if count > 0 && !opts.DryRun {
		log.Info().Int("count", count).Msg("expired invitations")
	}
	return count, nil
}

// Revoke cancels a pending invitation of tenantID.
func (s *Service) Revoke(ctx context.Context, tenantID, invitationID, actorID int64) error {
	inv, err := s.invites.GetByID(ctx, invitationID)
	if err != nil {
		return err
	}
	if inv == nil || inv.TenantID != tenantID {
		return ErrNotFound
	}

	ok, err := s.invites.Transition(ctx, inv.ID, models.InvitationStatusRevoked, s.now().Unix())
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotPending
	}

	inv.Status = models.InvitationStatusRevoked
	s.record(ctx, actorID, audit.ActionInviteRevoked, inv, map[string]interface{}{
		"email":     inv.Email,
		"tenant_id": inv.TenantID,
	})
	return nil
}

func (s *Service) List(ctx context.Context, tenantID int64) ([]*models.Invitation, error) {
	return s.invites.ListByTenant(ctx, tenantID)
}

type SeatUsage struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// Available reports whether one more seat can be taken. A zero limit is unlimited.
func (u SeatUsage) Available() bool {
	return u.Limit <= 0 || u.Used < u.Limit
}

// SeatUsage counts seated users plus outstanding invitations.
func (s *Service) SeatUsage(ctx context.Context, tenantID int64) (SeatUsage, error) {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return SeatUsage{}, err
	}
	if tenant == nil {
		return SeatUsage{}, fmt.Errorf("%w: tenant %d", errors.ErrNotFound, tenantID)
	}

	seated, err := s.users.CountSeated(ctx, tenantID, s.cfg.CountSuspended)
	if err != nil {
		return SeatUsage{}, err
	}
	outstanding, err := s.invites.CountOutstanding(ctx, tenantID, s.now().Unix())
	if err != nil {
		return SeatUsage{}, err
	}
	return SeatUsage{Used: seated + outstanding, Limit: tenant.SeatLimit}, nil
}

// EnsureSeatAvailable returns ErrNoSeatsAvailable when the tenant is full.
func (s *Service) EnsureSeatAvailable(ctx context.Context, tenantID int64) error {
	usage, err := s.SeatUsage(ctx, tenantID)
	if err != nil {
		return err
	}
	if !usage.Available() {
		return ErrNoSeatsAvailable
	}
	return nil
}

func (s *Service) actor(id *int64) int64 {
	if id == nil {
		return s.cfg.SystemActorID
	}
	return *id
}

func (s *Service) record(ctx context.Context, actorID int64, action string, inv *models.Invitation, meta map[string]interface{}) {
	if s.recorder == nil {
		return
	}
	entry := models.AuditLog{
		ActorID:     actorID,
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   inv.ID,
		Meta:        meta,
	}
	if !audit.TryRecord(ctx, s.recorder, entry) {
		metrics.AuditWriteFailures.Inc()
	}
}
