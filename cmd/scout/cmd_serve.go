package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"venuescout/internal/config"
	"venuescout/internal/logging"
)

var serveSchedule string

// serveCmd runs the scheduler as a daemon: a cron-scheduled discovery run
// once the daily quota has reset, plus hourly cache cleanup. The config
// file is watched and hot-reloaded between runs.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled discovery runs as a daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		// Budget for scheduled runs follows the live config. Reloads land on
		// the watcher goroutine while cron goroutines read, so the pointer
		// swap has to be atomic.
		var live atomic.Pointer[config.Config]
		live.Store(a.cfg)
		budgetFor := func() int { return live.Load().Dispatch.DefaultBudget }
		watcher, err := watchLiveConfig(&live)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()

		c := cron.New()
		if _, err := c.AddFunc(serveSchedule, func() {
			logging.Daemon("scheduled run starting")
			plan, err := a.allocator.Allocate(ctx, budgetFor())
			if err != nil {
				logger.Error("scheduled allocation failed", zap.Error(err))
				return
			}
			summary, err := a.dispatcher.Run(ctx, plan)
			if err != nil {
				logger.Error("scheduled run failed", zap.Error(err))
			}
			if summary != nil {
				logger.Info("scheduled run finished",
					zap.String("run_id", summary.RunID),
					zap.Int("executed", summary.Executed),
					zap.Int("skipped", summary.Skipped),
					zap.Int("failed", summary.Failed),
					zap.Int("quota_exhausted", summary.QuotaExhausted))
			}
		}); err != nil {
			return err
		}
		if _, err := c.AddFunc("@hourly", func() {
			if _, err := a.cache.CleanupExpired(ctx); err != nil {
				logger.Error("cache cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}

		c.Start()
		logger.Info("daemon started", zap.String("schedule", serveSchedule))
		<-ctx.Done()

		logger.Info("shutting down")
		<-c.Stop().Done()
		return nil
	},
}

// watchLiveConfig publishes each successful config reload through live.
func watchLiveConfig(live *atomic.Pointer[config.Config]) (*config.Watcher, error) {
	return config.NewWatcher(configPath, func(cfg *config.Config) {
		live.Store(cfg)
		if logger != nil {
			logger.Info("config reloaded", zap.Int("default_budget", cfg.Dispatch.DefaultBudget))
		}
	})
}

func init() {
	// Default: shortly after midnight, when the free quota has reset.
	serveCmd.Flags().StringVar(&serveSchedule, "schedule", "15 0 * * *", "cron schedule for discovery runs")
}
