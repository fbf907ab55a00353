package repositories

import (
	"context"
	"database/sql"

	"mystore/internal/platform/database"
	"mystore/internal/platform/models"
)

type PasswordResetRepository struct {
	db database.DBTX
}

func NewPasswordResetRepository(db database.DBTX) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// Put replaces any outstanding reset token for the address.
func (r *PasswordResetRepository) Put(ctx context.Context, reset *models.PasswordReset) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO password_resets (email, token_hash, created_at) VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET token_hash = excluded.token_hash, created_at = excluded.created_at
	`, reset.Email, reset.TokenHash, reset.CreatedAt)
	return err
}

func (r *PasswordResetRepository) Get(ctx context.Context, email string) (*models.PasswordReset, error) {
	reset := &models.PasswordReset{}
	err := r.db.QueryRowContext(ctx, `SELECT email, token_hash, created_at FROM password_resets WHERE email = ?`, email).
		Scan(&reset.Email, &reset.TokenHash, &reset.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return reset, nil
}

func (r *PasswordResetRepository) Delete(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM password_resets WHERE email = ?`, email)
	return err
}
