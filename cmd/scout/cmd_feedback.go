package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"venuescout/internal/ledger"
)

var (
	fbApprovals  int
	fbRejections int
	fbPartials   int
)

// feedbackCmd applies one review feedback batch to a strategy.
var feedbackCmd = &cobra.Command{
	Use:   "feedback [strategy-id]",
	Short: "Blend a review feedback batch into a strategy's success rate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		decision, err := a.ledger.RecordFeedbackBatch(ctx, ledger.FeedbackBatch{
			StrategyID: args[0],
			Approvals:  fbApprovals,
			Rejections: fbRejections,
			Partials:   fbPartials,
		})
		if err != nil {
			return err
		}
		if decision == nil {
			logger.Warn("feedback had no effect", zap.String("strategy", args[0]))
			return nil
		}
		fmt.Printf("%s: %s (%.0f -> %.0f, batch %.1f)\n",
			decision.StrategyID, decision.Action, decision.OldRate, decision.NewRate, decision.BatchRate)
		return nil
	},
}

func init() {
	feedbackCmd.Flags().IntVar(&fbApprovals, "approvals", 0, "approved venues from this strategy's queries")
	feedbackCmd.Flags().IntVar(&fbRejections, "rejections", 0, "rejected venues")
	feedbackCmd.Flags().IntVar(&fbPartials, "partials", 0, "partially approved venues")
}
