package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/stiapanreha-dev/BotOracle/internal/crm"
	"github.com/stiapanreha-dev/BotOracle/internal/metrics"
)

// Engine is the part of the CRM engine the timed jobs drive.
type Engine interface {
	TriggerDailyPlanning(ctx context.Context) (crm.PlanStats, error)
	TriggerDispatch(ctx context.Context, limit int) (crm.DispatchStats, error)
}

// SubscriptionSweeper marks ended subscriptions as expired.
type SubscriptionSweeper interface {
	ExpireSubscriptions(ctx context.Context, now time.Time) (int64, error)
}

// Config holds cron specs in the standard five-field format (or @descriptors).
type Config struct {
	PlanSpec      string
	DispatchSpec  string
	ExpireSpec    string
	DispatchLimit int
	Location      *time.Location
	JobTimeout    time.Duration
}

// Scheduler runs planning, dispatch and the subscription sweep on cron triggers.
// Overlapping runs of the same job are skipped.
type Scheduler struct {
	cron   *cron.Cron
	engine Engine
	subs   SubscriptionSweeper
	cfg    Config
	log    *zap.Logger
	ctx    context.Context
}

// New registers the jobs. An invalid spec is reported here rather than at Run.
func New(engine Engine, subs SubscriptionSweeper, cfg Config, log *zap.Logger) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	log = log.Named("scheduler")
	cronLog := cron.PrintfLogger(zap.NewStdLog(log.Named("cron")))

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		engine: engine,
		subs:   subs,
		cfg:    cfg,
		log:    log,
		ctx:    context.Background(),
	}

	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{"planning", cfg.PlanSpec, s.runPlanning},
		{"dispatch", cfg.DispatchSpec, s.runDispatch},
		{"subscription-expiry", cfg.ExpireSpec, s.runExpiry},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, j.fn); err != nil {
			return nil, fmt.Errorf("%s job %q: %w", j.name, j.spec, err)
		}
		log.Info("job registered", zap.String("job", j.name), zap.String("spec", j.spec))
	}
	return s, nil
}

// Run starts the cron loop and blocks until ctx is canceled, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))

	<-ctx.Done()
	s.log.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.cfg.JobTimeout)
}

func (s *Scheduler) runPlanning() {
	ctx, cancel := s.jobContext()
	defer cancel()
	stats, err := s.engine.TriggerDailyPlanning(ctx)
	if err != nil {
		s.log.Error("planning job failed", zap.Error(err))
		return
	}
	s.log.Info("planning job done",
		zap.Int("total_users", stats.TotalUsers),
		zap.Int("total_tasks", stats.TotalTasks),
	)
}

func (s *Scheduler) runDispatch() {
	ctx, cancel := s.jobContext()
	defer cancel()
	if _, err := s.engine.TriggerDispatch(ctx, s.cfg.DispatchLimit); err != nil {
		s.log.Error("dispatch job failed", zap.Error(err))
	}
}

func (s *Scheduler) runExpiry() {
	if s.subs == nil {
		return
	}
	ctx, cancel := s.jobContext()
	defer cancel()
	n, err := s.subs.ExpireSubscriptions(ctx, time.Now())
	if err != nil {
		s.log.Error("subscription expiry failed", zap.Error(err))
		return
	}
	metrics.SubscriptionsExpired.Add(float64(n))
	if n > 0 {
		s.log.Info("subscriptions expired", zap.Int64("count", n))
	}
}
