package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"venuescout/internal/store"
)

var (
	venueChain    string
	venueCountry  string
	venueCity     string
	venuePlatform string
)

// venuesCmd records review outcomes into the coverage tables. Coverage
// counts drive the chain and city tiers, so approved listings have to land
// here before the next plan reflects them.
var venuesCmd = &cobra.Command{
	Use:   "venues",
	Short: "Manage discovered venue listings",
}

var venuesAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Record an approved venue listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.AddVenue(ctx, store.Venue{
			Name:     args[0],
			Chain:    venueChain,
			Country:  venueCountry,
			City:     venueCity,
			Platform: venuePlatform,
		}); err != nil {
			return err
		}
		fmt.Printf("venue %q recorded\n", args[0])
		return nil
	},
}

func init() {
	venuesAddCmd.Flags().StringVar(&venueChain, "chain", "", "chain the venue belongs to, if any")
	venuesAddCmd.Flags().StringVar(&venueCountry, "country", "", "country code")
	venuesAddCmd.Flags().StringVar(&venueCity, "city", "", "city the listing serves")
	venuesAddCmd.Flags().StringVar(&venuePlatform, "platform", "", "delivery platform the listing was found on")
	venuesCmd.AddCommand(venuesAddCmd)
}
