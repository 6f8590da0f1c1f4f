package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
)

const userColumns = `
	id, tg_user_id, username, age, gender, archetype_primary, archetype_secondary,
	is_blocked, blocked_at, free_questions_left, last_seen_at,
	crm_cadence_level, last_crm_response_at, crm_stopped_reason, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u          domain.User
		age        sql.NullInt64
		gender     sql.NullString
		archPrim   sql.NullString
		archSec    sql.NullString
		blockedInt int
		blockedAt  sql.NullInt64
		lastSeen   sql.NullInt64
		level      int
		lastResp   sql.NullInt64
		reason     sql.NullString
		createdAt  int64
	)
	if err := row.Scan(
		&u.ID, &u.TgUserID, &u.Username, &age, &gender, &archPrim, &archSec,
		&blockedInt, &blockedAt, &u.FreeQuestionsLeft, &lastSeen,
		&level, &lastResp, &reason, &createdAt,
	); err != nil {
		return nil, err
	}
	u.Age = fromNullInt(age)
	u.Gender = fromNullString(gender)
	u.ArchetypePrimary = fromNullString(archPrim)
	u.ArchetypeSecondary = fromNullString(archSec)
	u.IsBlocked = blockedInt != 0
	u.BlockedAt = fromNullInt64(blockedAt)
	u.LastSeenAt = fromNullInt64(lastSeen)
	u.CadenceLevel = domain.CadenceLevel(level)
	u.LastCRMResponseAt = fromNullInt64(lastResp)
	u.StoppedReason = fromNullString(reason)
	u.CreatedAt = fromUnix(createdAt)
	return &u, nil
}

// EnsureUser returns the user for tgUserID, creating it with the free-question quota on first contact.
func (r *SQLiteRepo) EnsureUser(ctx context.Context, tgUserID int64, username string, freeQuestions int, now time.Time) (*domain.User, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (tg_user_id, username, free_questions_left, last_seen_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tg_user_id) DO UPDATE SET
			username = CASE WHEN excluded.username <> '' THEN excluded.username ELSE users.username END`,
		tgUserID, username, freeQuestions, now.UTC().Unix(), now.UTC().Unix(),
	)
	if err != nil {
		return nil, err
	}
	return r.GetUserByTgID(ctx, tgUserID)
}

// GetUser returns a user by internal id or domain.ErrNotFound.
func (r *SQLiteRepo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	return u, err
}

// GetUserByTgID returns a user by Telegram id or domain.ErrNotFound.
func (r *SQLiteRepo) GetUserByTgID(ctx context.Context, tgUserID int64) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE tg_user_id = ?`, tgUserID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tg user %d: %w", tgUserID, domain.ErrNotFound)
	}
	return u, err
}

// ListPlannableUsers returns non-blocked users with a complete profile, ordered by id.
func (r *SQLiteRepo) ListPlannableUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE is_blocked = 0
		  AND age IS NOT NULL
		  AND gender IS NOT NULL
		ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

// UpdateProfile stores onboarding answers.
func (r *SQLiteRepo) UpdateProfile(ctx context.Context, id int64, age int, gender string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET age = ?, gender = ? WHERE id = ?`, age, gender, id)
	return err
}

// TouchLastSeen records user activity.
func (r *SQLiteRepo) TouchLastSeen(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_seen_at = ? WHERE id = ?`, now.UTC().Unix(), id)
	return err
}

// SetFreeQuestions overwrites the remaining free-question quota.
func (r *SQLiteRepo) SetFreeQuestions(ctx context.Context, id int64, left int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET free_questions_left = ? WHERE id = ?`, left, id)
	return err
}

// SetBlocked toggles the blocked flag; blocked_at is set when blocking and cleared otherwise.
func (r *SQLiteRepo) SetBlocked(ctx context.Context, id int64, blocked bool, now time.Time) error {
	var at sql.NullInt64
	if blocked {
		at = sql.NullInt64{Int64: now.UTC().Unix(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_blocked = ?, blocked_at = ? WHERE id = ?`,
		boolToInt(blocked), at, id)
	return err
}

// SetCadenceLevel persists level 1 or 2 and clears any stop reason.
// Level 3 must go through StopCadence so a reason is always recorded.
func (r *SQLiteRepo) SetCadenceLevel(ctx context.Context, id int64, level domain.CadenceLevel) error {
	if level != domain.CadenceNormal && level != domain.CadenceReduced {
		return fmt.Errorf("%w: %d", domain.ErrInvalidLevel, level)
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET crm_cadence_level = ?, crm_stopped_reason = NULL WHERE id = ?`,
		int(level), id)
	return err
}

// StopCadence moves the user to level 3 with a reason in one statement.
func (r *SQLiteRepo) StopCadence(ctx context.Context, id int64, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: stop without reason", domain.ErrInvalidLevel)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET crm_cadence_level = 3, crm_stopped_reason = ? WHERE id = ?`,
		reason, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// RecordCRMResponse stamps a CRM response and restores level 1.
func (r *SQLiteRepo) RecordCRMResponse(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET last_crm_response_at = ?, crm_cadence_level = 1, crm_stopped_reason = NULL
		WHERE id = ?`,
		now.UTC().Unix(), id)
	return err
}
