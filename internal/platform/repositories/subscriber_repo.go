package repositories

import (
	"context"
	"database/sql"

	"mystore/internal/platform/database"
	"mystore/internal/platform/models"
)

type SubscriberRepository struct {
	db database.DBTX
}

func NewSubscriberRepository(db database.DBTX) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

func (r *SubscriberRepository) Subscribe(ctx context.Context, email string) error {
	now := nowUnix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscribers (email, status, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET status = excluded.status, unsubscribed_at = NULL, updated_at = excluded.updated_at
	`, email, models.SubscriberStatusSubscribed, now, now)
	return err
}

// Enroll adds email as subscribed unless a row exists already; an earlier
// opt-out is left as it is.
func (r *SubscriberRepository) Enroll(ctx context.Context, email string) (bool, error) {
	now := nowUnix()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO subscribers (email, status, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO NOTHING
	`, email, models.SubscriberStatusSubscribed, now, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SubscriberRepository) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	s := &models.Subscriber{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, status, unsubscribed_at, created_at, updated_at FROM subscribers WHERE email = ?
	`, email).Scan(&s.ID, &s.Email, &s.Status, &s.UnsubscribedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// Unsubscribe marks an active subscription as unsubscribed and reports whether one existed.
func (r *SubscriberRepository) Unsubscribe(ctx context.Context, email string, at int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscribers SET status = ?, unsubscribed_at = ?, updated_at = ? WHERE email = ? AND status = ?
	`, models.SubscriberStatusUnsubscribed, at, at, email, models.SubscriberStatusSubscribed)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
