package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stiapanreha-dev/BotOracle/internal/domain"
	"github.com/stiapanreha-dev/BotOracle/internal/metrics"
)

// PlannerConfig holds the global contact limits.
type PlannerConfig struct {
	MaxContactsPerDay int
	NudgeMinInterval  time.Duration
	NudgeMaxPerWeek   int
}

// DefaultPlannerConfig returns the limits used when nothing is configured.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		MaxContactsPerDay: domain.DefaultMaxContactsDay,
		NudgeMinInterval:  48 * time.Hour,
		NudgeMaxPerWeek:   2,
	}
}

const (
	recoveryAfterDays        = 3
	reducedRecoveryAfterDays = 7
	reducedRecoveryGapDays   = 5
	lowQuotaThreshold        = 2

	jitterMinutes = 15
)

// Quiet-hour fallback slot.
const (
	fallbackHour   = 9
	fallbackMinute = 15
)

// priorityWeights drive weighted-random selection; higher is likelier.
var priorityWeights = map[domain.TaskType]int{
	domain.TaskDailyPrompt: 3,
	domain.TaskRecovery:    3,
	domain.TaskLimitInfo:   2,
	domain.TaskPing:        2,
	domain.TaskNudgeSub:    1,
}

// windowWeights are looked up by window name; unknown names get defaultWindowWeight.
var windowWeights = map[string]float64{
	"morning": 0.4,
	"day":     0.3,
	"evening": 0.3,
}

const defaultWindowWeight = 0.3

// PlanStats summarises one planning run.
type PlanStats struct {
	TotalUsers     int `json:"total_users"`
	TotalTasks     int `json:"total_tasks"`
	UsersWithTasks int `json:"users_with_tasks"`
}

// Planner decides once a day which proactive tasks each user gets.
type Planner struct {
	store   Store
	cadence *CadenceManager
	cfg     PlannerConfig
	log     *zap.Logger
	opts    options
}

func NewPlanner(st Store, cadence *CadenceManager, cfg PlannerConfig, log *zap.Logger, opts ...Option) *Planner {
	if cfg.MaxContactsPerDay <= 0 {
		cfg.MaxContactsPerDay = domain.DefaultMaxContactsDay
	}
	return &Planner{
		store:   st,
		cadence: cadence,
		cfg:     cfg,
		log:     log.Named("planner"),
		opts:    newOptions(opts),
	}
}

// PlanAllUsers plans every non-blocked user with a complete profile. A failure
// for one user is logged and does not stop the others.
func (p *Planner) PlanAllUsers(ctx context.Context) (PlanStats, error) {
	var stats PlanStats
	users, err := p.store.ListPlannableUsers(ctx)
	if err != nil {
		return stats, fmt.Errorf("list users: %w", err)
	}
	stats.TotalUsers = len(users)
	metrics.PlanningUsers.Set(float64(len(users)))

	for i := range users {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		u := &users[i]
		n, err := p.PlanForUser(ctx, u)
		if err != nil {
			metrics.PlanningErrors.Inc()
			p.log.Error("plan user failed", zap.Int64("user_id", u.ID), zap.Error(err))
		}
		stats.TotalTasks += n
		if n > 0 {
			stats.UsersWithTasks++
		}
	}

	p.log.Info("planning completed",
		zap.Int("total_users", stats.TotalUsers),
		zap.Int("total_tasks", stats.TotalTasks),
		zap.Int("users_with_tasks", stats.UsersWithTasks),
	)
	return stats, nil
}

// PlanForUser schedules today's tasks for u and returns how many were created.
func (p *Planner) PlanForUser(ctx context.Context, u *domain.User) (int, error) {
	now := p.opts.now()

	prefs, err := p.loadPrefs(ctx, u.ID, now)
	if err != nil {
		return 0, err
	}

	level, err := p.cadence.UpdateLevel(ctx, u)
	if err != nil {
		return 0, fmt.Errorf("update cadence: %w", err)
	}
	if level == domain.CadenceStopped || !prefs.AllowProactive {
		return 0, nil
	}

	today := domain.StartOfDay(now, p.opts.loc)
	sentToday, err := p.store.CountContactsSince(ctx, u.ID, today)
	if err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	maxContacts := prefs.MaxContactsDay
	if maxContacts <= 0 {
		maxContacts = p.cfg.MaxContactsPerDay
	}
	slots := max(0, maxContacts-sentToday)
	if slots == 0 {
		return 0, nil
	}

	candidates, err := p.candidates(ctx, u, prefs, level, now)
	if err != nil {
		return 0, err
	}
	selected := SelectTasks(p.opts.rnd, candidates, slots)

	planned := now.In(p.opts.loc).Format(domain.PlannedDateLayout)
	created := 0
	for _, t := range selected {
		due := DueTime(p.opts.rnd, now, p.opts.loc, prefs)
		var payload domain.Payload = domain.PlannedPayload{PlannedDate: planned}
		if t == domain.TaskLimitInfo {
			payload = domain.LimitInfoPayload{PlannedDate: planned, Remaining: u.FreeQuestionsLeft}
		}
		if _, err := createTask(ctx, p.store, now, u.ID, t, due, payload); err != nil {
			return created, err
		}
		created++
		metrics.TasksPlanned.WithLabelValues(string(t)).Inc()
	}

	if created > 0 {
		p.log.Debug("tasks planned",
			zap.Int64("user_id", u.ID),
			zap.Int("count", created),
			zap.Stringer("level", level),
		)
	}
	return created, nil
}

// loadPrefs returns the user's preferences, creating defaults on first use.
func (p *Planner) loadPrefs(ctx context.Context, userID int64, now time.Time) (*domain.ContactPrefs, error) {
	prefs, err := p.store.GetPrefs(ctx, userID)
	if err == nil {
		return prefs, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get prefs: %w", err)
	}
	if err := p.store.InitPrefs(ctx, domain.DefaultContactPrefs(userID, p.cfg.MaxContactsPerDay), now); err != nil {
		return nil, fmt.Errorf("init prefs: %w", err)
	}
	return p.store.GetPrefs(ctx, userID)
}

// candidates evaluates each gating predicate independently.
func (p *Planner) candidates(ctx context.Context, u *domain.User, prefs *domain.ContactPrefs, level domain.CadenceLevel, now time.Time) ([]domain.TaskType, error) {
	if level == domain.CadenceReduced {
		return p.reducedCandidates(ctx, u, now)
	}

	var out []domain.TaskType
	today := domain.StartOfDay(now, p.opts.loc)

	dailySent, err := p.store.CountSentSince(ctx, u.ID, domain.TaskDailyPrompt, today)
	if err != nil {
		return nil, fmt.Errorf("daily sent: %w", err)
	}
	if dailySent == 0 {
		out = append(out, domain.TaskDailyPrompt)
	}

	lastPing, err := p.store.LastSentAt(ctx, u.ID, []domain.TaskType{domain.TaskPing})
	if err != nil {
		return nil, fmt.Errorf("last ping: %w", err)
	}
	if lastPing == nil || domain.DaysSince(now, *lastPing) >= prefs.DaysBetweenPings {
		out = append(out, domain.TaskPing)
	}

	subscribed, err := p.store.HasActiveSubscription(ctx, u.ID, now)
	if err != nil {
		return nil, fmt.Errorf("subscription: %w", err)
	}
	if !subscribed {
		ok, err := p.canNudge(ctx, u.ID, now)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, domain.TaskNudgeSub)
		}
	}

	if u.LastSeenAt != nil && domain.DaysSince(now, *u.LastSeenAt) >= recoveryAfterDays {
		out = append(out, domain.TaskRecovery)
	}

	if u.FreeQuestionsLeft > 0 && u.FreeQuestionsLeft <= lowQuotaThreshold && !subscribed {
		out = append(out, domain.TaskLimitInfo)
	}
	return out, nil
}

// reducedCandidates allows only an occasional recovery message.
func (p *Planner) reducedCandidates(ctx context.Context, u *domain.User, now time.Time) ([]domain.TaskType, error) {
	if u.LastSeenAt == nil || domain.DaysSince(now, *u.LastSeenAt) < reducedRecoveryAfterDays {
		return nil, nil
	}
	last, err := p.store.LastSentAt(ctx, u.ID, []domain.TaskType{domain.TaskRecovery})
	if err != nil {
		return nil, fmt.Errorf("last recovery: %w", err)
	}
	if last != nil && domain.DaysSince(now, *last) < reducedRecoveryGapDays {
		return nil, nil
	}
	return []domain.TaskType{domain.TaskRecovery}, nil
}

// canNudge applies the subscription nudge frequency guard.
func (p *Planner) canNudge(ctx context.Context, userID int64, now time.Time) (bool, error) {
	last, err := p.store.LastSentAt(ctx, userID, []domain.TaskType{domain.TaskNudgeSub})
	if err != nil {
		return false, fmt.Errorf("last nudge: %w", err)
	}
	if last != nil && now.Sub(*last) < p.cfg.NudgeMinInterval {
		return false, nil
	}
	week, err := p.store.CountSentSince(ctx, userID, domain.TaskNudgeSub, now.Add(-7*24*time.Hour))
	if err != nil {
		return false, fmt.Errorf("weekly nudges: %w", err)
	}
	return week < p.cfg.NudgeMaxPerWeek, nil
}

// SelectTasks draws up to slots distinct types from candidates. Each type
// appears in the draw pool priorityWeights times; once drawn, all its copies
// are removed.
func SelectTasks(r Rand, candidates []domain.TaskType, slots int) []domain.TaskType {
	if len(candidates) == 0 || slots <= 0 {
		return nil
	}

	var pool []domain.TaskType
	distinct := make(map[domain.TaskType]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := distinct[c]; dup {
			continue
		}
		distinct[c] = struct{}{}
		w := priorityWeights[c]
		if w <= 0 {
			w = 1
		}
		for range w {
			pool = append(pool, c)
		}
	}

	n := min(slots, len(distinct))
	selected := make([]domain.TaskType, 0, n)
	for len(selected) < n && len(pool) > 0 {
		choice := pool[r.Intn(len(pool))]
		selected = append(selected, choice)
		kept := pool[:0]
		for _, t := range pool {
			if t != choice {
				kept = append(kept, t)
			}
		}
		pool = kept
	}
	return selected
}

// pickWindow chooses a window name by weight, iterating names in sorted order.
func pickWindow(r Rand, w domain.Windows) string {
	names := w.Names()
	var total float64
	for _, n := range names {
		total += windowWeight(n)
	}
	x := r.Float64() * total
	for _, n := range names {
		x -= windowWeight(n)
		if x < 0 {
			return n
		}
	}
	return names[len(names)-1]
}

func windowWeight(name string) float64 {
	if w, ok := windowWeights[name]; ok {
		return w
	}
	return defaultWindowWeight
}

// DueTime picks a random minute inside one of the user's windows on the local
// day of now. Slots inside quiet hours move to 09:15. A ±15 minute jitter is
// applied last.
func DueTime(r Rand, now time.Time, loc *time.Location, prefs *domain.ContactPrefs) time.Time {
	windows := prefs.Windows
	if len(windows) == 0 {
		windows = domain.DefaultWindows()
	}
	rng := windows[pickWindow(r, windows)]
	hour := rng[0] + r.Intn(rng[1]-rng[0])
	minute := r.Intn(60)

	day := now.In(loc)
	due := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
	if domain.InWindow(domain.MinuteOfDay(due), prefs.QuietStartM, prefs.QuietEndM) {
		due = time.Date(day.Year(), day.Month(), day.Day(), fallbackHour, fallbackMinute, 0, 0, loc)
	}
	jitter := r.Intn(2*jitterMinutes+1) - jitterMinutes
	return due.Add(time.Duration(jitter) * time.Minute).UTC()
}
