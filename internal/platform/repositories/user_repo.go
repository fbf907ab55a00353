package repositories

import (
	"context"
	"database/sql"
	"time"

	"mystore/internal/platform/database"
	"mystore/internal/platform/models"
)

const userColumns = `
	u.id, u.tenant_id, u.role_id, u.email, u.name, u.password_hash, u.status, u.last_login_at, u.created_at, u.updated_at,
	r.id, r.slug, r.code, r.name`

const userFrom = ` FROM users u LEFT JOIN roles r ON r.id = u.role_id`

type UserRepository struct {
	db database.DBTX
}

func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *UserRepository) WithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads a user row and attaches the joined role when present.
func scanUser(row rowScanner) (*models.User, error) {
	user := &models.User{}
	var roleID sql.NullInt64
	var roleSlug, roleCode, roleName sql.NullString

	err := row.Scan(&user.ID, &user.TenantID, &user.RoleID, &user.Email, &user.Name, &user.PasswordHash, &user.Status,
		&user.LastLoginAt, &user.CreatedAt, &user.UpdatedAt, &roleID, &roleSlug, &roleCode, &roleName)
	if err != nil {
		return nil, err
	}

	if roleID.Valid {
		user.Role = &models.Role{ID: roleID.Int64, Slug: roleSlug.String, Code: roleCode.String, Name: roleName.String}
	}
	return user, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now().Unix()
	user.CreatedAt, user.UpdatedAt = now, now
	if user.Status == "" {
		user.Status = models.UserStatusActive
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (tenant_id, role_id, email, name, password_hash, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, user.TenantID, user.RoleID, user.Email, user.Name, user.PasswordHash, user.Status, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return err
	}
	user.ID, err = res.LastInsertId()
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT`+userColumns+userFrom+` WHERE u.id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `SELECT`+userColumns+userFrom+` WHERE u.email = ?`, email))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// List returns users of one tenant, or every user when tenantID is nil.
func (r *UserRepository) List(ctx context.Context, tenantID *int64) ([]*models.User, error) {
	query := `SELECT` + userColumns + userFrom
	var args []any
	if tenantID != nil {
		query += ` WHERE u.tenant_id = ?`
		args = append(args, *tenantID)
	}
	query += ` ORDER BY u.id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Activate binds an existing user to a tenant and role and marks it active.
func (r *UserRepository) Activate(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().Unix()
	user.Status = models.UserStatusActive
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET tenant_id = ?, role_id = ?, name = ?, password_hash = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, user.TenantID, user.RoleID, user.Name, user.PasswordHash, user.Status, user.UpdatedAt, user.ID)
	return err
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, name, email string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET name = ?, email = ?, updated_at = ? WHERE id = ?`, name, email, time.Now().Unix(), id)
	return err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, passwordHash, time.Now().Unix(), id)
	return err
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID int64, timestamp int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, timestamp, userID)
	return err
}

// CountSeated counts tenant users occupying a seat.
func (r *UserRepository) CountSeated(ctx context.Context, tenantID int64, includeSuspended bool) (int, error) {
	query := `SELECT COUNT(1) FROM users WHERE tenant_id = ? AND status = ?`
	args := []any{tenantID, models.UserStatusActive}
	if includeSuspended {
		query = `SELECT COUNT(1) FROM users WHERE tenant_id = ? AND status IN (?, ?)`
		args = append(args, models.UserStatusSuspended)
	}

	var n int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}
