package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var planBudget int

// planCmd previews a plan without executing anything.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview the query plan for a budget without executing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		total := planBudget
		if total <= 0 {
			total = a.cfg.Dispatch.DefaultBudget
		}

		plan, err := a.allocator.Allocate(ctx, total)
		if err != nil {
			return err
		}
		fmt.Print(renderPlan(plan))
		fmt.Println(plan.Summary())
		return nil
	},
}

func init() {
	planCmd.Flags().IntVarP(&planBudget, "budget", "b", 0, "total query budget to preview (default from config)")
}
