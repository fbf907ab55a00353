package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"mystore/internal/pkg/errors"
	"mystore/internal/platform/database"
	"mystore/internal/platform/models"
)

const (
	ActionInviteCreated  = "invite.created"
	ActionInviteAccepted = "invite.accepted"
	ActionInviteExpired  = "invite.expired"
	ActionInviteRevoked  = "invite.revoked"
	ActionUserCreated    = "user.created"
	ActionPasswordReset  = "user.password_reset"
)

// Recorder appends audit entries. Implementations must not be part of the
// caller's transaction.
type Recorder interface {
	Record(ctx context.Context, entry models.AuditLog) error
}

type Logger struct {
	db  database.DBTX
	now func() time.Time
}

func NewLogger(db database.DBTX) *Logger {
	return &Logger{db: db, now: time.Now}
}

func (l *Logger) Record(ctx context.Context, entry models.AuditLog) error {
	if entry.CreatedAt == 0 {
		entry.CreatedAt = l.now().Unix()
	}
	if entry.Meta == nil {
		entry.Meta = map[string]interface{}{}
	}

	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("%w: encode meta: %v", errors.ErrAuditWriteFailure, err)
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO audit_log (actor_id, action, subject_type, subject_id, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ActorID, entry.Action, entry.SubjectType, entry.SubjectID, string(metaJSON), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrAuditWriteFailure, err)
	}
	return nil
}

// TryRecord writes entry and only logs a warning when that fails. Use it after
// the primary state change has committed.
func TryRecord(ctx context.Context, r Recorder, entry models.AuditLog) bool {
	if r == nil {
		return false
	}
	if err := r.Record(ctx, entry); err != nil {
		log.Warn().Err(err).
			Str("action", entry.Action).
			Str("subject_type", entry.SubjectType).
			Int64("subject_id", entry.SubjectID).
			Msg("audit write failed")
		return false
	}
	return true
}

// ListForSubject returns entries about one subject, oldest first.
func (l *Logger) ListForSubject(ctx context.Context, subjectType string, subjectID int64) ([]models.AuditLog, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, actor_id, action, subject_type, subject_id, meta, created_at
		FROM audit_log WHERE subject_type = ? AND subject_id = ? ORDER BY id
	`, subjectType, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		var metaStr string
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.SubjectType, &e.SubjectID, &metaStr, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metaStr), &e.Meta); err != nil {
			return nil, fmt.Errorf("decode meta of audit entry %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
