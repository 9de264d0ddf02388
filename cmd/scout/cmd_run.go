package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"venuescout/internal/quota"
)

var runBudget int

// runCmd allocates a plan and executes it.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Allocate a query plan and execute it",
	Long: `Builds a tier-tagged query plan for the given budget and dispatches it:
cached queries are skipped, the rest are executed against the first
credential with free quota (or the paid counter, when enabled).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		total := runBudget
		if total <= 0 {
			total = a.cfg.Dispatch.DefaultBudget
		}

		plan, err := a.allocator.Allocate(ctx, total)
		if err != nil {
			return err
		}
		logger.Info("plan allocated",
			zap.String("run_id", plan.RunID),
			zap.Int("budget", total),
			zap.Int("planned", plan.TotalActual()))
		fmt.Print(renderPlan(plan))

		summary, err := a.dispatcher.Run(ctx, plan)
		if summary != nil {
			fmt.Print(renderSummary(summary))
		}
		if err != nil {
			var qe *quota.QuotaExhaustedError
			if errors.As(err, &qe) {
				logger.Warn("run stopped early: quota exhausted; retry after the next daily reset")
				return nil
			}
			return err
		}
		return nil
	},
}

func init() {
	runCmd.Flags().IntVarP(&runBudget, "budget", "b", 0, "total query budget for this run (default from config)")
}
