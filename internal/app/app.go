package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stiapanreha-dev/BotOracle/internal/admin"
	"github.com/stiapanreha-dev/BotOracle/internal/config"
	"github.com/stiapanreha-dev/BotOracle/internal/crm"
	"github.com/stiapanreha-dev/BotOracle/internal/persona"
	"github.com/stiapanreha-dev/BotOracle/internal/scheduler"
	"github.com/stiapanreha-dev/BotOracle/internal/store"
	"github.com/stiapanreha-dev/BotOracle/internal/telegram"
)

// App is the composition root: one instance per process, nothing global.
type App struct {
	cfg     config.Config
	log     *zap.Logger
	bot     *tgbotapi.BotAPI
	repo    *store.SQLiteRepo
	engine  *crm.Engine
	router  *telegram.Router
	httpSrv *http.Server
}

// New connects to Telegram, opens the database and wires the CRM services.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if err := cfg.RequireBot(); err != nil {
		return nil, err
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	bot.Debug = false

	repo, err := store.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	log.Info("sqlite ready", zap.String("path", cfg.DBPath))

	a, err := build(cfg, log, repo, bot)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	a.bot = bot
	return a, nil
}

// build wires everything that does not need a live Telegram connection.
func build(cfg config.Config, log *zap.Logger, repo *store.SQLiteRepo, api telegram.BotAPI) (*App, error) {
	gen, err := persona.NewDefault()
	if err != nil {
		return nil, fmt.Errorf("persona templates: %w", err)
	}

	opts := []crm.Option{crm.WithLocation(cfg.Location())}
	cadence := crm.NewCadenceManager(repo, log, opts...)
	planner := crm.NewPlanner(repo, cadence, crm.PlannerConfig{
		MaxContactsPerDay: cfg.MaxContactsPerDay,
		NudgeMinInterval:  cfg.NudgeMinInterval(),
		NudgeMaxPerWeek:   cfg.NudgeMaxPerWeek,
	}, log, opts...)
	sender := telegram.NewSender(api, cfg.SendRatePerSec, cfg.SendBurst)
	dispatcher := crm.NewDispatcher(repo, gen, sender, repo, log, opts...)
	engine := crm.NewEngine(repo, cadence, planner, dispatcher, log, opts...)

	router := telegram.NewRouter(api, repo, engine, telegram.RouterConfig{
		FreeQuestions:     cfg.FreeQuestions,
		MaxContactsPerDay: cfg.MaxContactsPerDay,
		Location:          cfg.Location(),
	}, log)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      admin.NewRouter(engine, cfg.AdminToken, cfg.DispatchLimit, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	return &App{cfg: cfg, log: log, repo: repo, engine: engine, router: router, httpSrv: srv}, nil
}

// Engine exposes the CRM facade for one-shot commands.
func (a *App) Engine() *crm.Engine { return a.engine }

// Close releases the database.
func (a *App) Close() error {
	return a.repo.Close()
}

// Run serves Telegram updates, the cron jobs and the HTTP surface until
// SIGINT/SIGTERM or the first component failure.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting oracle-bot",
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("tz", a.cfg.DefaultTZ),
	)

	sched, err := scheduler.New(a.engine, a.repo, scheduler.Config{
		PlanSpec:      a.cfg.PlanCron,
		DispatchSpec:  a.cfg.DispatchCron,
		ExpireSpec:    a.cfg.ExpireCron,
		DispatchLimit: a.cfg.DispatchLimit,
		Location:      a.cfg.Location(),
	}, a.log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(ctx)
	})

	g.Go(func() error {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.log.Info("shutdown signal received")
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(shCtx); err != nil {
			a.log.Warn("http server shutdown error", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 30
		updates := a.bot.GetUpdatesChan(u)
		defer a.bot.StopReceivingUpdates()
		return a.router.Run(ctx, updates)
	})

	err = g.Wait()
	if cerr := a.Close(); cerr != nil {
		a.log.Warn("close sqlite failed", zap.Error(cerr))
	}
	return err
}
