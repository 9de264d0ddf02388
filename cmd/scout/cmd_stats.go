package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// statsCmd shows credential pool usage.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show credential pool usage and estimated paid cost",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.pool.Stats(ctx)
		if err != nil {
			return err
		}
		rows, err := a.pool.CredentialStats(ctx)
		if err != nil {
			return err
		}
		fmt.Print(renderStats(stats, rows))
		return nil
	},
}
