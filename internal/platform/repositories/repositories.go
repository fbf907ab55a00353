package repositories

import (
	"context"
	"database/sql"
	"time"

	"mystore/internal/platform/database"
	"mystore/internal/platform/models"
)

type TenantRepository struct {
	db database.DBTX
}

func NewTenantRepository(db database.DBTX) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	now := time.Now().Unix()
	tenant.CreatedAt, tenant.UpdatedAt = now, now

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO tenants (slug, name, seat_limit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, tenant.Slug, tenant.Name, tenant.SeatLimit, tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		return err
	}
	tenant.ID, err = res.LastInsertId()
	return err
}

func (r *TenantRepository) GetByID(ctx context.Context, id int64) (*models.Tenant, error) {
	tenant := &models.Tenant{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, slug, name, seat_limit, created_at, updated_at
		FROM tenants WHERE id = ?
	`, id).Scan(&tenant.ID, &tenant.Slug, &tenant.Name, &tenant.SeatLimit, &tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return tenant, nil
}

type RoleRepository struct {
	db database.DBTX
}

func NewRoleRepository(db database.DBTX) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) GetByID(ctx context.Context, id int64) (*models.Role, error) {
	role := &models.Role{}
	err := r.db.QueryRowContext(ctx, `SELECT id, slug, code, name FROM roles WHERE id = ?`, id).
		Scan(&role.ID, &role.Slug, &role.Code, &role.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return role, nil
}

func (r *RoleRepository) List(ctx context.Context) ([]*models.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, slug, code, name FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Slug, &role.Code, &role.Name); err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}
	return roles, rows.Err()
}
