package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// cleanupCmd prunes expired query cache entries.
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired query cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.cache.CleanupExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d expired cache entries\n", n)
		return nil
	},
}
