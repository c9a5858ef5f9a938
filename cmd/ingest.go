package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	ingestClient      string
	ingestConcurrency int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Extract fields from documents and merge them into a client profile",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := ingestConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Ingest.Concurrency
		}

		results, err := env.Pipeline.IngestBatch(ctx, ingestClient, args, concurrency)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		failed := 0
		for _, r := range results {
			if r.Error != "" {
				failed++
			}
		}
		zap.L().Info("ingest complete",
			zap.String("client_id", ingestClient),
			zap.Int("documents", len(results)),
			zap.Int("failed", failed),
		)
		return printJSON(cmd.OutOrStdout(), results)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestClient, "client", "", "client ID (required)")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 0, "documents processed in parallel (default from config)")
	_ = ingestCmd.MarkFlagRequired("client")
	rootCmd.AddCommand(ingestCmd)
}
