package repositories

import (
	"context"
	"database/sql"

	"mystore/internal/platform/database"
	"mystore/internal/platform/models"
)

type SessionRepository struct {
	db database.DBTX
}

func NewSessionRepository(db database.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, ip_address, user_agent, last_activity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.ID, s.UserID, s.IPAddress, s.UserAgent, s.LastActivity, s.CreatedAt)
	return err
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	s := &models.Session{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, ip_address, user_agent, last_activity, created_at FROM sessions WHERE id = ?
	`, id).Scan(&s.ID, &s.UserID, &s.IPAddress, &s.UserAgent, &s.LastActivity, &s.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *SessionRepository) Touch(ctx context.Context, id string, at int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET last_activity = ? WHERE id = ?`, at, id)
	return err
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

// DeleteForUser drops every session of a user except keepID (pass "" to drop all).
func (r *SessionRepository) DeleteForUser(ctx context.Context, userID int64, keepID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ? AND id <> ?`, userID, keepID)
	return err
}

// PruneInactive deletes sessions idle since before cutoff and returns how many went away.
func (r *SessionRepository) PruneInactive(ctx context.Context, cutoff int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE last_activity < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
