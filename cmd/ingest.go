package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/reconcile-cli/internal/engine"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <deal-id> <payload.json>",
	Short: "Process one document's extracted fields",
	Long:  "Reads an extraction payload, evaluates its fields, detects conflicts against the deal's other documents, and refreshes the reconciled values.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dealID, path := args[0], args[1]

		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		payload, err := engine.LoadPayload(path)
		if err != nil {
			return err
		}
		if payload.DealID != dealID {
			return eris.Errorf("payload deal_id %q does not match argument %q", payload.DealID, dealID)
		}

		report, err := env.Engine.ProcessDocument(cmd.Context(), dealID, payload.DocumentID, payload.Fields)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
