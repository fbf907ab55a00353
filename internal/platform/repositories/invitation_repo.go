package repositories

import (
	"context"
	"database/sql"
	"time"

	"mystore/internal/platform/database"
	"mystore/internal/platform/models"
)

const invitationColumns = `id, tenant_id, email, token_hash, role_id, invited_by, status, expires_at, accepted_at, created_at, updated_at`

type InvitationRepository struct {
	db database.DBTX
}

func NewInvitationRepository(db database.DBTX) *InvitationRepository {
	return &InvitationRepository{db: db}
}

func (r *InvitationRepository) WithTx(tx *sql.Tx) *InvitationRepository {
	return &InvitationRepository{db: tx}
}

func scanInvitation(row rowScanner) (*models.Invitation, error) {
	inv := &models.Invitation{}
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.Email, &inv.TokenHash, &inv.RoleID, &inv.InvitedBy, &inv.Status,
		&inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *InvitationRepository) Create(ctx context.Context, inv *models.Invitation) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO invitations (tenant_id, email, token_hash, role_id, invited_by, status, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inv.TenantID, inv.Email, inv.TokenHash, inv.RoleID, inv.InvitedBy, inv.Status, inv.ExpiresAt, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return err
	}
	inv.ID, err = res.LastInsertId()
	return err
}

func (r *InvitationRepository) GetByID(ctx context.Context, id int64) (*models.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return inv, nil
}

// GetPendingByTokenHash returns nil, nil when no pending invitation carries the hash.
func (r *InvitationRepository) GetPendingByTokenHash(ctx context.Context, hash string) (*models.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE token_hash = ? AND status = ?`, hash, models.InvitationStatusPending))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return inv, nil
}

func (r *InvitationRepository) ListByTenant(ctx context.Context, tenantID int64) ([]*models.Invitation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE tenant_id = ? ORDER BY id DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []*models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// ListDue returns up to limit pending invitations with expires_at <= now and
// id > afterID, ordered by id. Callers page by passing the last id seen.
func (r *InvitationRepository) ListDue(ctx context.Context, now int64, afterID int64, limit int) ([]*models.Invitation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+invitationColumns+` FROM invitations
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ? AND id > ?
		ORDER BY id
		LIMIT ?
	`, models.InvitationStatusPending, now, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []*models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// Transition moves a pending invitation to status. It reports false when the
// row was no longer pending, which makes concurrent transitions lose cleanly.
func (r *InvitationRepository) Transition(ctx context.Context, id int64, status string, at int64) (bool, error) {
	query := `UPDATE invitations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	args := []any{status, at, id, models.InvitationStatusPending}
	if status == models.InvitationStatusAccepted {
		query = `UPDATE invitations SET status = ?, updated_at = ?, accepted_at = ? WHERE id = ? AND status = ?`
		args = []any{status, at, at, id, models.InvitationStatusPending}
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountOutstanding counts pending invitations of a tenant that have not expired yet.
func (r *InvitationRepository) CountOutstanding(ctx context.Context, tenantID int64, now int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM invitations
		WHERE tenant_id = ? AND status = ? AND (expires_at IS NULL OR expires_at > ?)
	`, tenantID, models.InvitationStatusPending, now).Scan(&n)
	return n, err
}

func nowUnix() int64 { return time.Now().Unix() }
