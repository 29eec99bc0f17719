package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <deal-id>",
	Short: "Show a deal's reconciliation rollup",
	Long:  "Prints the deal record with its derived unresolved flag, pending issue and conflict counts, and the current reconciled value per field.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		status, err := env.Engine.DealStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
