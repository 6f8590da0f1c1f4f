package crm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
	"github.com/stiapanreha-dev/BotOracle/internal/metrics"
)

const (
	reducedAfterDays = 2
	stoppedAfterDays = 14

	// A user message within this long after a proactive contact counts as a reply to it.
	responseWindow = 48 * time.Hour
	farewellDelay  = time.Hour
)

// LevelFor maps response recency to a cadence level. Users who never
// responded stay at CadenceNormal.
func LevelFor(now time.Time, lastResponse *time.Time) domain.CadenceLevel {
	if lastResponse == nil {
		return domain.CadenceNormal
	}
	switch days := domain.DaysSince(now, *lastResponse); {
	case days >= stoppedAfterDays:
		return domain.CadenceStopped
	case days >= reducedAfterDays:
		return domain.CadenceReduced
	default:
		return domain.CadenceNormal
	}
}

// CadenceManager keeps each user's willingness-to-be-contacted level in sync
// with how recently they answered proactive contact.
type CadenceManager struct {
	store Store
	log   *zap.Logger
	opts  options
}

func NewCadenceManager(st Store, log *zap.Logger, opts ...Option) *CadenceManager {
	return &CadenceManager{store: st, log: log.Named("cadence"), opts: newOptions(opts)}
}

// Level returns the stored cadence level.
func (c *CadenceManager) Level(ctx context.Context, userID int64) (domain.CadenceLevel, error) {
	u, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !u.CadenceLevel.Valid() {
		return domain.CadenceNormal, nil
	}
	return u.CadenceLevel, nil
}

// UpdateLevel recomputes u's level and persists it when it changed. Entering
// CadenceStopped goes through StopCadence; a stopped user stays stopped until
// TrackResponse. u is updated in place.
func (c *CadenceManager) UpdateLevel(ctx context.Context, u *domain.User) (domain.CadenceLevel, error) {
	old := u.CadenceLevel
	if !old.Valid() {
		old = domain.CadenceNormal
	}
	// Only TrackResponse lifts a stop.
	if old == domain.CadenceStopped {
		return old, nil
	}
	next := LevelFor(c.opts.now(), u.LastCRMResponseAt)
	if next == old {
		return old, nil
	}

	if next == domain.CadenceStopped {
		if err := c.StopCadence(ctx, u.ID, domain.StopReasonNoResponse); err != nil {
			return old, err
		}
		reason := domain.StopReasonNoResponse
		u.StoppedReason = &reason
	} else {
		if err := c.store.SetCadenceLevel(ctx, u.ID, next); err != nil {
			return old, fmt.Errorf("set cadence level: %w", err)
		}
		u.StoppedReason = nil
	}
	u.CadenceLevel = next

	if err := c.store.LogEvent(ctx, &u.ID, domain.EventCadenceChanged, map[string]any{
		"from_level": int(old),
		"to_level":   int(next),
	}, c.opts.now()); err != nil {
		return next, fmt.Errorf("log cadence change: %w", err)
	}
	metrics.CadenceTransitions.WithLabelValues(strconv.Itoa(int(old)), strconv.Itoa(int(next))).Inc()
	c.log.Info("cadence level changed",
		zap.Int64("user_id", u.ID),
		zap.Stringer("from", old),
		zap.Stringer("to", next),
	)
	return next, nil
}

// TrackResponse records that u answered proactive contact: the response time
// is stamped and the level forced back to CadenceNormal. Coming back from a
// reduced or stopped level also cancels a pending farewell.
func (c *CadenceManager) TrackResponse(ctx context.Context, u *domain.User) error {
	now := c.opts.now()
	old := u.CadenceLevel
	if err := c.store.RecordCRMResponse(ctx, u.ID, now); err != nil {
		return fmt.Errorf("record crm response: %w", err)
	}
	t := now.UTC()
	u.LastCRMResponseAt = &t
	u.CadenceLevel = domain.CadenceNormal
	u.StoppedReason = nil

	if old <= domain.CadenceNormal {
		return nil
	}

	if _, err := c.store.CancelPending(ctx, u.ID, []domain.TaskType{domain.TaskFarewell}, now); err != nil {
		return fmt.Errorf("cancel farewell: %w", err)
	}
	if err := c.store.LogEvent(ctx, &u.ID, domain.EventCadenceRestored, map[string]any{
		"from_level": int(old),
		"to_level":   int(domain.CadenceNormal),
	}, now); err != nil {
		return fmt.Errorf("log cadence restore: %w", err)
	}
	metrics.CadenceTransitions.WithLabelValues(strconv.Itoa(int(old)), strconv.Itoa(int(domain.CadenceNormal))).Inc()
	c.log.Info("cadence restored", zap.Int64("user_id", u.ID), zap.Stringer("from", old))
	return nil
}

// IsResponseToCRM reports whether the latest proactive contact to the user was
// sent within responseWindow. Any message in that window counts as a reply.
func (c *CadenceManager) IsResponseToCRM(ctx context.Context, userID int64) (bool, error) {
	last, err := c.store.LastSentAt(ctx, userID, domain.ProactiveTypes)
	if err != nil || last == nil {
		return false, err
	}
	return c.opts.now().Sub(*last) <= responseWindow, nil
}

// StopCadence moves the user to CadenceStopped, cancels pending proactive
// tasks and schedules a farewell one hour out. A farewell that is still
// pending is reused, so repeated calls leave exactly one. A blank reason is
// rejected with domain.ErrInvalidPayload before anything is written.
func (c *CadenceManager) StopCadence(ctx context.Context, userID int64, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: empty stop reason", domain.ErrInvalidPayload)
	}
	now := c.opts.now()
	if err := c.store.StopCadence(ctx, userID, reason); err != nil {
		return fmt.Errorf("stop cadence: %w", err)
	}
	cancelled, err := c.store.CancelPending(ctx, userID, domain.ProactiveTypes, now)
	if err != nil {
		return fmt.Errorf("cancel proactive tasks: %w", err)
	}

	pending, err := c.store.HasPending(ctx, userID, domain.TaskFarewell)
	if err != nil {
		return fmt.Errorf("check farewell: %w", err)
	}
	if !pending {
		if _, err := createTask(ctx, c.store, now, userID, domain.TaskFarewell,
			now.Add(farewellDelay), domain.FarewellPayload{Reason: reason}); err != nil {
			return fmt.Errorf("create farewell: %w", err)
		}
	}

	if err := c.store.LogEvent(ctx, &userID, domain.EventCadenceStopped, map[string]any{
		"reason":           reason,
		"cancelled_tasks":  cancelled,
		"farewell_created": !pending,
	}, now); err != nil {
		return fmt.Errorf("log cadence stop: %w", err)
	}
	c.log.Info("cadence stopped",
		zap.Int64("user_id", userID),
		zap.String("reason", reason),
		zap.Int64("cancelled_tasks", cancelled),
	)
	return nil
}
