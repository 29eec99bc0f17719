package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/store"
)

var (
	resolveAction    string
	resolveValue     string
	resolveBy        string
	resolveRationale string
)

// buildResolveRequest turns the flag set into a store request. --value is
// parsed as a number when it looks like one, text otherwise.
func buildResolveRequest() (store.ResolveRequest, error) {
	req := store.ResolveRequest{
		Resolution: model.ConflictResolution(resolveAction),
		ResolvedBy: resolveBy,
		Rationale:  resolveRationale,
	}
	if resolveAction == "" {
		return req, eris.New("--action is required")
	}
	if resolveValue != "" {
		var v model.FieldValue
		if n, err := strconv.ParseFloat(resolveValue, 64); err == nil {
			v = model.NumberValue(n)
		} else {
			v = model.TextValue(resolveValue)
		}
		req.Value = &v
	}
	return req, nil
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve an issue or conflict",
}

var resolveConflictCmd = &cobra.Command{
	Use:   "conflict <conflict-id>",
	Short: "Resolve a cross-document conflict",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildResolveRequest()
		if err != nil {
			return err
		}

		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := env.Engine.ResolveConflict(cmd.Context(), args[0], req)
		if err != nil {
			return err
		}
		return printJSON(c)
	},
}

var resolveIssueCmd = &cobra.Command{
	Use:   "issue <issue-id>",
	Short: "Resolve a clarification issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildResolveRequest()
		if err != nil {
			return err
		}

		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		iss, err := env.Engine.ResolveIssue(cmd.Context(), args[0], req)
		if err != nil {
			return err
		}
		return printJSON(iss)
	},
}

func init() {
	for _, c := range []*cobra.Command{resolveConflictCmd, resolveIssueCmd} {
		c.Flags().StringVar(&resolveAction, "action", "", "resolution: use_first, use_second, use_average, manual_value, ignored (issues: manual_value, ignored)")
		c.Flags().StringVar(&resolveValue, "value", "", "explicit value for manual_value")
		c.Flags().StringVar(&resolveBy, "by", "", "who resolved it")
		c.Flags().StringVar(&resolveRationale, "rationale", "", "why this resolution was chosen")
		resolveCmd.AddCommand(c)
	}
	rootCmd.AddCommand(resolveCmd)
}
