package crm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
	"github.com/stiapanreha-dev/BotOracle/internal/metrics"
	"github.com/stiapanreha-dev/BotOracle/internal/store"
)

// DefaultRescheduleHorizon bounds how far ahead a reply pushes out pending tasks.
const DefaultRescheduleHorizon = 48 * time.Hour

// TriggeredByUserMessage tags reaction tasks created for an inbound message.
const TriggeredByUserMessage = "user_message"

// Engine is the surface the scheduler, admin API and message router call into.
type Engine struct {
	store      Store
	cadence    *CadenceManager
	planner    *Planner
	dispatcher *Dispatcher
	log        *zap.Logger
	opts       options
}

func NewEngine(st Store, cadence *CadenceManager, planner *Planner, dispatcher *Dispatcher, log *zap.Logger, opts ...Option) *Engine {
	return &Engine{
		store:      st,
		cadence:    cadence,
		planner:    planner,
		dispatcher: dispatcher,
		log:        log.Named("engine"),
		opts:       newOptions(opts),
	}
}

// TriggerDailyPlanning runs planning for all eligible users.
func (e *Engine) TriggerDailyPlanning(ctx context.Context) (PlanStats, error) {
	return e.planner.PlanAllUsers(ctx)
}

// TriggerDispatch sends up to limit due tasks.
func (e *Engine) TriggerDispatch(ctx context.Context, limit int) (DispatchStats, error) {
	return e.dispatcher.DispatchDueTasks(ctx, limit)
}

// OnUserMessage records inbound activity: last-seen is touched, a reply to a
// recent proactive contact restores the cadence, and imminent pings and
// nudges are pushed out.
func (e *Engine) OnUserMessage(ctx context.Context, userID int64) error {
	now := e.opts.now()
	if err := e.store.TouchLastSeen(ctx, userID, now); err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}

	responded, err := e.cadence.IsResponseToCRM(ctx, userID)
	if err != nil {
		return fmt.Errorf("response check: %w", err)
	}
	if responded {
		u, err := e.store.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		if err := e.cadence.TrackResponse(ctx, u); err != nil {
			return err
		}
	}

	n, err := e.RescheduleUpcoming(ctx, userID, domain.PostponableTypes, DefaultRescheduleHorizon)
	if err != nil {
		return err
	}
	if n > 0 {
		e.log.Info("rescheduled upcoming tasks", zap.Int64("user_id", userID), zap.Int64("count", n))
	}
	return nil
}

// RescheduleUpcoming moves the user's pending tasks of the given types that
// fall due within horizon to now plus the user's postpone-on-reply delay.
func (e *Engine) RescheduleUpcoming(ctx context.Context, userID int64, types []domain.TaskType, horizon time.Duration) (int64, error) {
	now := e.opts.now()
	postpone := domain.DefaultPostponeOnReply
	prefs, err := e.store.GetPrefs(ctx, userID)
	switch {
	case err == nil:
		if prefs.PostponeOnReply > 0 {
			postpone = prefs.PostponeOnReply
		}
	case !errors.Is(err, domain.ErrNotFound):
		return 0, fmt.Errorf("get prefs: %w", err)
	}

	n, err := e.store.RescheduleUpcoming(ctx, domain.RescheduleRequest{
		UserID:  userID,
		Types:   types,
		Now:     now,
		Horizon: horizon,
		NewDue:  now.Add(postpone),
	})
	if err != nil {
		return 0, fmt.Errorf("reschedule: %w", err)
	}
	metrics.TasksRescheduled.Add(float64(n))
	return n, nil
}

// CreateImmediateTask schedules a task due now, outside daily planning.
func (e *Engine) CreateImmediateTask(ctx context.Context, userID int64, t domain.TaskType, p domain.Payload) (*domain.Task, error) {
	now := e.opts.now()
	return createTask(ctx, e.store, now, userID, t, now, p)
}

// ListTasks exposes task history for the admin surface.
func (e *Engine) ListTasks(ctx context.Context, userID int64, status domain.TaskStatus, limit int) ([]domain.Task, error) {
	return e.store.ListTasks(ctx, store.TaskFilter{UserID: userID, Status: status, Limit: limit})
}

// CadenceLevel returns the user's current cadence level.
func (e *Engine) CadenceLevel(ctx context.Context, userID int64) (domain.CadenceLevel, error) {
	return e.cadence.Level(ctx, userID)
}

// NextContact returns when the user's earliest scheduled outreach is due, or
// nil when nothing is planned. Reactions are not outreach and are skipped.
func (e *Engine) NextContact(ctx context.Context, userID int64) (*time.Time, error) {
	tasks, err := e.store.ListTasks(ctx, store.TaskFilter{UserID: userID, Status: domain.StatusScheduled})
	if err != nil {
		return nil, err
	}
	var next *time.Time
	for _, t := range tasks {
		if slices.Contains(domain.ReactionTypes, t.Type) {
			continue
		}
		if next == nil || t.DueAt.Before(*next) {
			due := t.DueAt
			next = &due
		}
	}
	return next, nil
}

// StopCadence stops outreach for a user on operator request.
func (e *Engine) StopCadence(ctx context.Context, userID int64, reason string) error {
	return e.cadence.StopCadence(ctx, userID, reason)
}
