package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stiapanreha-dev/BotOracle/internal/app"
	"github.com/stiapanreha-dev/BotOracle/internal/config"
	"github.com/stiapanreha-dev/BotOracle/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type cli struct {
	envFile string
	cfg     config.Config
	log     *zap.Logger
}

func newRootCmd() *cobra.Command {
	rt := &cli{}

	root := &cobra.Command{
		Use:   "oracle-bot",
		Short: "Oracle Lounge Telegram bot with proactive CRM outreach",
		Long: `Oracle Lounge bot.

Without a subcommand the bot is served: Telegram updates, the CRM cron jobs
(planning, dispatch, subscription expiry) and the admin HTTP surface.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if rt.log != nil {
				_ = rt.log.Sync()
			}
		},
		RunE: rt.serve,
	}
	root.PersistentFlags().StringVar(&rt.envFile, "env-file", ".env", "optional dotenv file loaded before the environment")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the bot, scheduler and admin HTTP server",
		RunE:  rt.serve,
	})
	root.AddCommand(&cobra.Command{
		Use:   "plan",
		Short: "Run daily CRM planning once and print the stats",
		RunE:  rt.plan,
	})

	var limit int
	dispatch := &cobra.Command{
		Use:   "dispatch",
		Short: "Send due CRM tasks once and print the stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.dispatch(cmd, limit)
		},
	}
	dispatch.Flags().IntVar(&limit, "limit", 0, "max tasks to send (default DISPATCH_LIMIT)")
	root.AddCommand(dispatch)

	return root
}

func (rt *cli) load() error {
	cfg, err := config.Load(rt.envFile)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	rt.cfg, rt.log = cfg, log
	return nil
}

func (rt *cli) serve(cmd *cobra.Command, _ []string) error {
	a, err := app.New(cmd.Context(), rt.cfg, rt.log)
	if err != nil {
		rt.log.Error("app init failed", zap.Error(err))
		return err
	}
	if err := a.Run(cmd.Context()); err != nil {
		rt.log.Error("app run failed", zap.Error(err))
		return err
	}
	return nil
}

func (rt *cli) plan(cmd *cobra.Command, _ []string) error {
	return rt.oneShot(cmd.Context(), func(ctx context.Context, a *app.App) (any, error) {
		return a.Engine().TriggerDailyPlanning(ctx)
	})
}

func (rt *cli) dispatch(cmd *cobra.Command, limit int) error {
	if limit <= 0 {
		limit = rt.cfg.DispatchLimit
	}
	return rt.oneShot(cmd.Context(), func(ctx context.Context, a *app.App) (any, error) {
		return a.Engine().TriggerDispatch(ctx, limit)
	})
}

func (rt *cli) oneShot(ctx context.Context, fn func(context.Context, *app.App) (any, error)) error {
	a, err := app.New(ctx, rt.cfg, rt.log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stats, err := fn(ctx, a)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
