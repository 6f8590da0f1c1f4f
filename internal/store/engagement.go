package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session statuses that count as an ongoing engagement.
const (
	engagementEngaging   = "engaging"
	engagementCollecting = "collecting"
	engagementOffered    = "offered"
)

// StartEngagementSession opens a session for the user unless one is already
// active. It returns the session id and whether a new session was started.
func (r *SQLiteRepo) StartEngagementSession(ctx context.Context, userID int64, now time.Time) (string, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM engagement_sessions
		WHERE user_id = ? AND status IN (?, ?, ?)
		ORDER BY started_at DESC
		LIMIT 1`,
		userID, engagementEngaging, engagementCollecting, engagementOffered,
	).Scan(&existing)
	switch {
	case err == nil:
		return existing, false, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return "", false, err
	}

	id := uuid.NewString()
	ts := now.UTC().Unix()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO engagement_sessions (id, user_id, status, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, userID, engagementEngaging, ts, ts,
	); err != nil {
		return "", false, err
	}
	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return id, true, nil
}
