package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var batchConcurrency int

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Process a directory of extraction payloads",
	Long:  "Processes every *.json payload in the directory concurrently. Payloads that fail to parse or process are reported without aborting the rest.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency == 0 {
			concurrency = cfg.Ingest.MaxConcurrentDocuments
		}

		result, err := env.Engine.ProcessBatch(cmd.Context(), args[0], concurrency)
		if err != nil {
			return err
		}

		for path, ferr := range result.Failed {
			zap.L().Error("payload failed", zap.String("path", path), zap.Error(ferr))
		}

		out := struct {
			Processed int      `json:"processed"`
			Failed    []string `json:"failed,omitempty"`
		}{Processed: len(result.Processed)}
		for path := range result.Failed {
			out.Failed = append(out.Failed, path)
		}
		return printJSON(out)
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max documents in flight (default from config)")
	rootCmd.AddCommand(batchCmd)
}
