package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var disableReason string

// credentialsCmd manages the credential rotation.
var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage search credentials",
}

var credentialsDisableCmd = &cobra.Command{
	Use:   "disable [credential-id]",
	Short: "Take a credential out of rotation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.pool.DisableCredential(ctx, args[0], disableReason); err != nil {
			return err
		}
		fmt.Printf("credential %s disabled\n", args[0])
		return nil
	},
}

var credentialsEnableCmd = &cobra.Command{
	Use:   "enable [credential-id]",
	Short: "Return a credential to rotation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.pool.EnableCredential(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("credential %s enabled\n", args[0])
		return nil
	},
}

func init() {
	credentialsDisableCmd.Flags().StringVar(&disableReason, "reason", "manual", "why the credential is being disabled")
	credentialsCmd.AddCommand(credentialsDisableCmd)
	credentialsCmd.AddCommand(credentialsEnableCmd)
}
