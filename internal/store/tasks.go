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

const taskColumns = `
	t.id, t.user_id, t.type, t.status, t.due_at, t.sent_at, t.result_code,
	t.payload, t.created_at, t.updated_at`

// pendingClause limits terminal transitions to rows that are still pending.
var pendingClause = `status IN (` + placeholders(len(domain.PendingStatuses)) + `)`

// scanTaskRow reads taskColumns; the payload is returned raw for the caller to decode.
func scanTaskRow(row rowScanner, extra ...any) (domain.Task, string, error) {
	var (
		t         domain.Task
		typ       string
		status    string
		dueAt     int64
		sentAt    sql.NullInt64
		result    sql.NullString
		payload   string
		createdAt int64
		updatedAt int64
	)
	dest := append([]any{
		&t.ID, &t.UserID, &typ, &status, &dueAt, &sentAt, &result,
		&payload, &createdAt, &updatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Task{}, "", err
	}
	t.Type = domain.TaskType(typ)
	t.Status = domain.TaskStatus(status)
	t.DueAt = fromUnix(dueAt)
	t.SentAt = fromNullInt64(sentAt)
	t.ResultCode = fromNullString(result)
	t.CreatedAt = fromUnix(createdAt)
	t.UpdatedAt = fromUnix(updatedAt)
	return t, payload, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	t, raw, err := scanTaskRow(row)
	if err != nil {
		return nil, err
	}
	p, err := domain.DecodePayload(raw)
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", t.ID, err)
	}
	t.Payload = p
	return &t, nil
}

// CreateTask validates and inserts a scheduled task, returning its id.
func (r *SQLiteRepo) CreateTask(ctx context.Context, t *domain.Task, now time.Time) (int64, error) {
	if _, err := domain.ParseTaskType(string(t.Type)); err != nil {
		return 0, err
	}
	if err := domain.ValidatePayload(t.Type, t.Payload); err != nil {
		return 0, err
	}
	payload, err := domain.EncodePayload(t.Payload)
	if err != nil {
		return 0, err
	}
	status := t.Status
	if status == "" {
		status = domain.StatusScheduled
	}

	ts := now.UTC().Unix()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO proactive_tasks (user_id, type, status, due_at, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, string(t.Type), string(status), t.DueAt.UTC().Unix(), payload, ts, ts,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	t.ID = id
	t.Status = status
	t.CreatedAt = fromUnix(ts)
	t.UpdatedAt = fromUnix(ts)
	return id, nil
}

// GetTask returns a task by id or domain.ErrNotFound.
func (r *SQLiteRepo) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM proactive_tasks t WHERE t.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, domain.ErrNotFound)
	}
	return t, err
}

// ListTasks returns tasks matching f, newest due first.
func (r *SQLiteRepo) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != 0 {
		where = append(where, "t.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, string(f.Status))
	}
	q := `SELECT ` + taskColumns + ` FROM proactive_tasks t`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY t.due_at DESC, t.id DESC`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}
	return res, rows.Err()
}

// ListDueTasks returns unclaimed scheduled tasks with due_at <= now for
// non-blocked users, oldest first. A payload that fails to decode is reported
// through DueTask.DecodeErr so one bad row does not hide the rest of the batch.
func (r *SQLiteRepo) ListDueTasks(ctx context.Context, now time.Time, limit int) ([]domain.DueTask, error) {
	args := []any{string(domain.StatusScheduled), now.UTC().Unix(), limit}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+taskColumns+`,
		       u.tg_user_id, u.username, u.age, u.gender, u.archetype_primary, u.archetype_secondary
		FROM proactive_tasks t
		JOIN users u ON u.id = t.user_id
		WHERE t.status = ?
		  AND t.due_at <= ?
		  AND u.is_blocked = 0
		ORDER BY t.due_at ASC, t.id ASC
		LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.DueTask
	for rows.Next() {
		var (
			uc       domain.UserContext
			age      sql.NullInt64
			gender   sql.NullString
			archPrim sql.NullString
			archSec  sql.NullString
		)
		t, raw, err := scanTaskRow(rows, &uc.TgUserID, &uc.Username, &age, &gender, &archPrim, &archSec)
		if err != nil {
			return nil, err
		}
		uc.UserID = t.UserID
		uc.Age = fromNullInt(age)
		uc.Gender = fromNullString(gender)
		uc.ArchetypePrimary = fromNullString(archPrim)
		uc.ArchetypeSecondary = fromNullString(archSec)

		dt := domain.DueTask{Task: t, User: uc}
		if p, err := domain.DecodePayload(raw); err != nil {
			dt.DecodeErr = err
		} else {
			dt.Payload = p
		}
		res = append(res, dt)
	}
	return res, rows.Err()
}

// ClaimTask moves a scheduled task to due, marking it as taken by one
// dispatcher. It reports false when another caller claimed it first or the
// task is no longer scheduled.
func (r *SQLiteRepo) ClaimTask(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE proactive_tasks
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.StatusDue), now.UTC().Unix(), id, string(domain.StatusScheduled),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkSent moves a pending task to sent. It reports false when the task was
// already terminal.
func (r *SQLiteRepo) MarkSent(ctx context.Context, id int64, now time.Time) (bool, error) {
	ts := now.UTC().Unix()
	args := append([]any{string(domain.StatusSent), ts, ts, id}, statusArgs(domain.PendingStatuses)...)
	res, err := r.db.ExecContext(ctx, `
		UPDATE proactive_tasks
		SET status = ?, sent_at = ?, updated_at = ?
		WHERE id = ? AND `+pendingClause,
		args...,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkFailed moves a pending task to failed with a result code.
func (r *SQLiteRepo) MarkFailed(ctx context.Context, id int64, code string, now time.Time) (bool, error) {
	args := append([]any{string(domain.StatusFailed), code, now.UTC().Unix(), id}, statusArgs(domain.PendingStatuses)...)
	res, err := r.db.ExecContext(ctx, `
		UPDATE proactive_tasks
		SET status = ?, result_code = ?, updated_at = ?
		WHERE id = ? AND `+pendingClause,
		args...,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CancelPending cancels the user's pending tasks of the given types.
func (r *SQLiteRepo) CancelPending(ctx context.Context, userID int64, types []domain.TaskType, now time.Time) (int64, error) {
	if len(types) == 0 {
		return 0, nil
	}
	args := []any{string(domain.StatusCancelled), now.UTC().Unix(), userID}
	args = append(args, typeArgs(types)...)
	args = append(args, statusArgs(domain.PendingStatuses)...)
	res, err := r.db.ExecContext(ctx, `
		UPDATE proactive_tasks
		SET status = ?, updated_at = ?
		WHERE user_id = ?
		  AND type IN (`+placeholders(len(types))+`)
		  AND `+pendingClause,
		args...,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HasPending reports whether the user has a scheduled/due task of type t.
func (r *SQLiteRepo) HasPending(ctx context.Context, userID int64, t domain.TaskType) (bool, error) {
	args := append([]any{userID, string(t)}, statusArgs(domain.PendingStatuses)...)
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM proactive_tasks
		WHERE user_id = ? AND type = ? AND `+pendingClause,
		args...,
	).Scan(&n)
	return n > 0, err
}

// RescheduleUpcoming moves pending tasks of req.Types due in (Now, Now+Horizon]
// to req.NewDue. Tasks already due are left for the dispatcher.
func (r *SQLiteRepo) RescheduleUpcoming(ctx context.Context, req domain.RescheduleRequest) (int64, error) {
	if len(req.Types) == 0 {
		return 0, nil
	}
	now := req.Now.UTC()
	args := []any{req.NewDue.UTC().Unix(), now.Unix(), req.UserID}
	args = append(args, typeArgs(req.Types)...)
	args = append(args, statusArgs(domain.PendingStatuses)...)
	args = append(args, now.Unix(), now.Add(req.Horizon).Unix())
	res, err := r.db.ExecContext(ctx, `
		UPDATE proactive_tasks
		SET due_at = ?, updated_at = ?
		WHERE user_id = ?
		  AND type IN (`+placeholders(len(req.Types))+`)
		  AND `+pendingClause+`
		  AND due_at > ?
		  AND due_at <= ?`,
		args...,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountContactsSince counts tasks sent to the user since the given instant,
// excluding reaction types.
func (r *SQLiteRepo) CountContactsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	args := []any{userID, string(domain.StatusSent), since.UTC().Unix()}
	args = append(args, typeArgs(domain.ReactionTypes)...)
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM proactive_tasks
		WHERE user_id = ?
		  AND status = ?
		  AND sent_at >= ?
		  AND type NOT IN (`+placeholders(len(domain.ReactionTypes))+`)`,
		args...,
	).Scan(&n)
	return n, err
}

// CountSentSince counts sent tasks of type t since the given instant.
func (r *SQLiteRepo) CountSentSince(ctx context.Context, userID int64, t domain.TaskType, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM proactive_tasks
		WHERE user_id = ? AND type = ? AND status = ? AND sent_at >= ?`,
		userID, string(t), string(domain.StatusSent), since.UTC().Unix(),
	).Scan(&n)
	return n, err
}

// LastSentAt returns the most recent sent_at among the given types, or nil.
func (r *SQLiteRepo) LastSentAt(ctx context.Context, userID int64, types []domain.TaskType) (*time.Time, error) {
	if len(types) == 0 {
		return nil, nil
	}
	args := []any{userID, string(domain.StatusSent)}
	args = append(args, typeArgs(types)...)
	var last sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(sent_at) FROM proactive_tasks
		WHERE user_id = ? AND status = ? AND type IN (`+placeholders(len(types))+`)`,
		args...,
	).Scan(&last)
	if err != nil {
		return nil, err
	}
	return fromNullInt64(last), nil
}
