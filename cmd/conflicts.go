package main

import (
	"github.com/spf13/cobra"
)

var conflictsAll bool

var conflictsCmd = &cobra.Command{
	Use:   "conflicts <deal-id>",
	Short: "List a deal's cross-document conflicts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.Store.GetDeal(cmd.Context(), args[0]); err != nil {
			return err
		}
		conflicts, err := env.Store.ListConflicts(cmd.Context(), args[0], !conflictsAll)
		if err != nil {
			return err
		}
		return printJSON(conflicts)
	},
}

func init() {
	conflictsCmd.Flags().BoolVar(&conflictsAll, "all", false, "include resolved and ignored conflicts")
	rootCmd.AddCommand(conflictsCmd)
}
