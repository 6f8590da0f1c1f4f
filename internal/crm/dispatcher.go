package crm

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
	"github.com/stiapanreha-dev/BotOracle/internal/metrics"
)

// Generator produces message text for a task.
type Generator interface {
	// Generate returns the text for task type t, or a *GenerationError.
	Generate(ctx context.Context, t domain.TaskType, uc domain.UserContext, p domain.Payload) (string, error)
	// Fallback returns the apology text sent when Generate fails.
	Fallback(uc domain.UserContext) string
}

// Transport delivers text to a Telegram chat. Failures should be *DeliveryError.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// EngagementStarter opens a follow-up session after a daily message.
type EngagementStarter interface {
	StartEngagementSession(ctx context.Context, userID int64, now time.Time) (string, bool, error)
}

// DispatchStats summarises one dispatch batch.
type DispatchStats struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Blocked int `json:"blocked"`
}

type outcome string

const (
	outcomeSent    outcome = "sent"
	outcomeFailed  outcome = "failed"
	outcomeBlocked outcome = "blocked"
	outcomeSkipped outcome = "skipped"
)

const (
	DefaultDispatchLimit = 100
	maxResultCodeLen     = 200
)

// Dispatcher sends due tasks and records their terminal state.
type Dispatcher struct {
	store      Store
	gen        Generator
	transport  Transport
	engagement EngagementStarter
	log        *zap.Logger
	opts       options
}

func NewDispatcher(st Store, gen Generator, tr Transport, eng EngagementStarter, log *zap.Logger, opts ...Option) *Dispatcher {
	return &Dispatcher{
		store:      st,
		gen:        gen,
		transport:  tr,
		engagement: eng,
		log:        log.Named("dispatcher"),
		opts:       newOptions(opts),
	}
}

// DispatchDueTasks processes up to limit due tasks, oldest first. Each task is
// claimed before delivery so concurrent batches never send it twice, and gets
// exactly one delivery attempt; failures are terminal. A store error aborts the
// batch and is returned with the counts so far.
func (d *Dispatcher) DispatchDueTasks(ctx context.Context, limit int) (DispatchStats, error) {
	var stats DispatchStats
	if limit <= 0 {
		limit = DefaultDispatchLimit
	}
	start := time.Now()
	defer func() { metrics.DispatchDuration.Observe(time.Since(start).Seconds()) }()

	tasks, err := d.store.ListDueTasks(ctx, d.opts.now(), limit)
	if err != nil {
		return stats, fmt.Errorf("list due tasks: %w", err)
	}

	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		res, err := d.process(ctx, t)
		if err != nil {
			return stats, fmt.Errorf("task %d: %w", t.ID, err)
		}
		switch res {
		case outcomeSkipped:
			continue
		case outcomeSent:
			stats.Sent++
		case outcomeBlocked:
			stats.Blocked++
		default:
			stats.Failed++
		}
		metrics.TasksDispatched.WithLabelValues(string(t.Type), string(res)).Inc()
	}

	if stats.Sent+stats.Failed > 0 {
		d.log.Info("dispatch completed",
			zap.Int("sent", stats.Sent),
			zap.Int("failed", stats.Failed),
			zap.Int("blocked", stats.Blocked),
		)
	}
	return stats, nil
}

// process handles one task. The returned error is reserved for store failures.
func (d *Dispatcher) process(ctx context.Context, t domain.DueTask) (outcome, error) {
	log := d.log.With(zap.Int64("task_id", t.ID), zap.Int64("user_id", t.UserID), zap.String("type", string(t.Type)))

	claimed, err := d.store.ClaimTask(ctx, t.ID, d.opts.now())
	if err != nil {
		return outcomeSkipped, err
	}
	if !claimed {
		log.Debug("task claimed elsewhere")
		return outcomeSkipped, nil
	}

	if t.DecodeErr != nil {
		log.Error("malformed task", zap.Error(t.DecodeErr))
		if _, err := d.store.MarkFailed(ctx, t.ID, resultCode(domain.ResultProcessError, t.DecodeErr), d.opts.now()); err != nil {
			return outcomeFailed, err
		}
		return outcomeFailed, nil
	}

	text, err := d.gen.Generate(ctx, t.Type, t.User, t.Payload)
	if err != nil {
		log.Warn("generation failed, using fallback", zap.Error(err))
		metrics.GenerationFallbacks.WithLabelValues(string(t.Type)).Inc()
		text = d.gen.Fallback(t.User)
	}

	if err := d.transport.Send(ctx, t.User.TgUserID, text); err != nil {
		return d.handleSendError(ctx, t, err, log)
	}

	now := d.opts.now()
	ok, err := d.store.MarkSent(ctx, t.ID, now)
	if err != nil {
		return outcomeSent, err
	}
	if !ok {
		log.Warn("task left pending state while sending")
	}

	if t.Type.IsDaily() && d.engagement != nil {
		id, started, err := d.engagement.StartEngagementSession(ctx, t.UserID, now)
		switch {
		case err != nil:
			log.Warn("start engagement session", zap.Error(err))
		case started:
			log.Info("engagement session started", zap.String("session_id", id))
		}
	}
	return outcomeSent, nil
}

func (d *Dispatcher) handleSendError(ctx context.Context, t domain.DueTask, sendErr error, log *zap.Logger) (outcome, error) {
	now := d.opts.now()
	if ClassifyDeliveryError(sendErr) == DeliveryBlocked {
		if err := d.store.SetBlocked(ctx, t.UserID, true, now); err != nil {
			return outcomeBlocked, err
		}
		if _, err := d.store.MarkFailed(ctx, t.ID, domain.ResultBlocked, now); err != nil {
			return outcomeBlocked, err
		}
		if err := d.store.LogEvent(ctx, &t.UserID, domain.EventUserBlocked, map[string]any{
			"task_id": t.ID,
			"type":    string(t.Type),
		}, now); err != nil {
			return outcomeBlocked, err
		}
		log.Info("user blocked the bot", zap.Int64("tg_user_id", t.User.TgUserID))
		return outcomeBlocked, nil
	}

	log.Error("send failed", zap.Int64("tg_user_id", t.User.TgUserID), zap.Error(sendErr))
	if _, err := d.store.MarkFailed(ctx, t.ID, resultCode(domain.ResultSendError, sendErr), now); err != nil {
		return outcomeFailed, err
	}
	return outcomeFailed, nil
}

// resultCode renders "code: message" truncated to maxResultCodeLen bytes on a rune boundary.
func resultCode(code string, err error) string {
	s := code + ": " + err.Error()
	if len(s) <= maxResultCodeLen {
		return s
	}
	s = s[:maxResultCodeLen]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
