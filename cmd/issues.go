package main

import (
	"github.com/spf13/cobra"
)

var issuesAll bool

var issuesCmd = &cobra.Command{
	Use:   "issues <deal-id>",
	Short: "List a deal's clarification issues, highest priority first",
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
		issues, err := env.Store.ListIssues(cmd.Context(), args[0], !issuesAll)
		if err != nil {
			return err
		}
		return printJSON(issues)
	},
}

func init() {
	issuesCmd.Flags().BoolVar(&issuesAll, "all", false, "include resolved and ignored issues")
	rootCmd.AddCommand(issuesCmd)
}
