package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/sells-group/docfill/internal/migrate"
	"github.com/sells-group/docfill/internal/store"
)

var (
	migrateDryRun      bool
	migrateLimit       int
	migrateConcurrency int
	migrateProgress    bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Convert legacy extraction records to the structured format",
	Long:  "Rewrites every document whose extracted data still holds bare legacy values. Already-structured fields are left untouched, so the command is safe to run repeatedly.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "migrate")
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := migrateConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Migrate.Concurrency
		}
		opts := migrate.Options{
			DryRun:      migrateDryRun,
			Limit:       migrateLimit,
			Concurrency: concurrency,
		}
		if migrateProgress {
			opts.Progress = progressReporter(cmd.ErrOrStderr(), "Migrating documents")
		}
		return runMigrate(ctx, env.Store, opts, cmd.OutOrStdout())
	},
}

func runMigrate(ctx context.Context, st store.Store, opts migrate.Options, out io.Writer) error {
	res, err := migrate.New(st).Run(ctx, opts)
	if err != nil {
		return eris.Wrap(err, "migrate")
	}

	verb := "Migrated"
	if res.DryRun {
		verb = "Would migrate"
	}
	fmt.Fprintf(out, "%s: %d\nSkipped: %d\nErrored: %d\n", verb, res.Migrated, res.Skipped, res.Errored)
	for _, e := range res.Errors {
		fmt.Fprintf(out, "  %s (%s): %s\n", e.Filename, e.DocumentID, e.Message)
	}
	return nil
}

// progressReporter draws a bar on w, created once the total is known.
func progressReporter(w io.Writer, description string) func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetDescription(description),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set(done)
		if done == total {
			_ = bar.Finish()
		}
	}
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "report what would change without writing")
	migrateCmd.Flags().IntVar(&migrateLimit, "limit", 0, "maximum number of documents to examine (0 = all)")
	migrateCmd.Flags().IntVar(&migrateConcurrency, "concurrency", 0, "documents processed in parallel (default from config)")
	migrateCmd.Flags().BoolVar(&migrateProgress, "progress", false, "show a progress bar on stderr")
	rootCmd.AddCommand(migrateCmd)
}
