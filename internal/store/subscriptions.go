package store

import (
	"context"
	"time"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
)

const subscriptionExpired = "expired"

// CreateSubscription inserts a subscription period.
func (r *SQLiteRepo) CreateSubscription(ctx context.Context, s *domain.Subscription) (int64, error) {
	status := s.Status
	if status == "" {
		status = domain.SubscriptionActive
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, plan_code, status, starts_at, ends_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.UserID, s.PlanCode, status, s.StartsAt.UTC().Unix(), s.EndsAt.UTC().Unix(),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.ID = id
	s.Status = status
	return id, nil
}

// HasActiveSubscription reports whether an active subscription covers now.
func (r *SQLiteRepo) HasActiveSubscription(ctx context.Context, userID int64, now time.Time) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM subscriptions
		WHERE user_id = ? AND status = ? AND ends_at > ?`,
		userID, domain.SubscriptionActive, now.UTC().Unix(),
	).Scan(&n)
	return n > 0, err
}

// ExpireSubscriptions flips active subscriptions that ended at or before now.
func (r *SQLiteRepo) ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscriptions SET status = ?
		WHERE status = ? AND ends_at <= ?`,
		subscriptionExpired, domain.SubscriptionActive, now.UTC().Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
