package main

import (
	"github.com/spf13/cobra"
)

var dealCategory string

var dealCmd = &cobra.Command{
	Use:   "deal",
	Short: "Manage deals",
}

var dealCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a deal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		deal, err := env.Store.CreateDeal(cmd.Context(), args[0], dealCategory)
		if err != nil {
			return err
		}
		return printJSON(deal)
	},
}

var dealListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deals",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		deals, err := env.Store.ListDeals(cmd.Context(), 0)
		if err != nil {
			return err
		}
		return printJSON(deals)
	},
}

func init() {
	dealCreateCmd.Flags().StringVar(&dealCategory, "category", "", "facility category for benchmark lookup (default \"default\")")
	dealCmd.AddCommand(dealCreateCmd)
	dealCmd.AddCommand(dealListCmd)
	rootCmd.AddCommand(dealCmd)
}
