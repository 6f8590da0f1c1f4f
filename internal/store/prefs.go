package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
)

// GetPrefs returns contact preferences or domain.ErrNotFound.
func (r *SQLiteRepo) GetPrefs(ctx context.Context, userID int64) (*domain.ContactPrefs, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, allow_proactive, max_contacts_per_day, windows,
		       quiet_start_m, quiet_end_m, postpone_on_reply_sec, days_between_pings,
		       created_at, updated_at
		FROM contact_prefs
		WHERE user_id = ?`,
		userID,
	)

	var (
		p           domain.ContactPrefs
		allowInt    int
		windowsJSON string
		postponeSec int64
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(&p.UserID, &allowInt, &p.MaxContactsDay, &windowsJSON,
		&p.QuietStartM, &p.QuietEndM, &postponeSec, &p.DaysBetweenPings,
		&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("prefs for user %d: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(windowsJSON), &p.Windows); err != nil {
		return nil, fmt.Errorf("prefs for user %d: windows: %w", userID, err)
	}
	p.AllowProactive = allowInt != 0
	p.PostponeOnReply = time.Duration(postponeSec) * time.Second
	p.CreatedAt = fromUnix(createdAt)
	p.UpdatedAt = fromUnix(updatedAt)
	return &p, nil
}

// InitPrefs inserts p unless the user already has preferences.
func (r *SQLiteRepo) InitPrefs(ctx context.Context, p domain.ContactPrefs, now time.Time) error {
	return r.writePrefs(ctx, p, now, `ON CONFLICT(user_id) DO NOTHING`)
}

// UpsertPrefs inserts or overwrites the user's preferences.
func (r *SQLiteRepo) UpsertPrefs(ctx context.Context, p domain.ContactPrefs, now time.Time) error {
	return r.writePrefs(ctx, p, now, `
		ON CONFLICT(user_id) DO UPDATE SET
			allow_proactive       = excluded.allow_proactive,
			max_contacts_per_day  = excluded.max_contacts_per_day,
			windows               = excluded.windows,
			quiet_start_m         = excluded.quiet_start_m,
			quiet_end_m           = excluded.quiet_end_m,
			postpone_on_reply_sec = excluded.postpone_on_reply_sec,
			days_between_pings    = excluded.days_between_pings,
			updated_at            = excluded.updated_at`)
}

func (r *SQLiteRepo) writePrefs(ctx context.Context, p domain.ContactPrefs, now time.Time, conflict string) error {
	if err := p.Windows.Validate(); err != nil {
		return err
	}
	windowsJSON, err := json.Marshal(p.Windows)
	if err != nil {
		return err
	}
	ts := now.UTC().Unix()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO contact_prefs (
			user_id, allow_proactive, max_contacts_per_day, windows,
			quiet_start_m, quiet_end_m, postpone_on_reply_sec, days_between_pings,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) `+conflict,
		p.UserID, boolToInt(p.AllowProactive), p.MaxContactsDay, string(windowsJSON),
		p.QuietStartM, p.QuietEndM, int64(p.PostponeOnReply/time.Second), p.DaysBetweenPings,
		ts, ts,
	)
	return err
}
