package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
)

// LogEvent appends an audit event. userID may be nil for system events.
func (r *SQLiteRepo) LogEvent(ctx context.Context, userID *int64, eventType string, meta map[string]any, now time.Time) error {
	if meta == nil {
		meta = map[string]any{}
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	var uid sql.NullInt64
	if userID != nil {
		uid = sql.NullInt64{Int64: *userID, Valid: true}
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO events (user_id, type, meta, created_at) VALUES (?, ?, ?, ?)`,
		uid, eventType, string(b), now.UTC().Unix(),
	)
	return err
}

// ListEvents returns the user's events, oldest first. An empty eventType matches all.
func (r *SQLiteRepo) ListEvents(ctx context.Context, userID int64, eventType string) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, type, meta, created_at
		FROM events
		WHERE user_id = ? AND (? = '' OR type = ?)
		ORDER BY id ASC`,
		userID, eventType, eventType,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Event
	for rows.Next() {
		var (
			e         domain.Event
			uid       sql.NullInt64
			meta      string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &uid, &e.Type, &meta, &createdAt); err != nil {
			return nil, err
		}
		if uid.Valid {
			v := uid.Int64
			e.UserID = &v
		}
		if err := json.Unmarshal([]byte(meta), &e.Meta); err != nil {
			return nil, err
		}
		e.CreatedAt = fromUnix(createdAt)
		res = append(res, e)
	}
	return res, rows.Err()
}
