package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docfill/internal/model"
	"github.com/sells-group/docfill/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Database maintenance",
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		zap.L().Info("store schema up to date", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

var storeImportPath string

var storeImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import extraction records from a JSON file",
	Long:  "Loads a JSON array of documents ({id, clientId, filename, extractedData, createdAt}) as stored, legacy values included. Existing ids are skipped. Run `docfill migrate` afterwards to convert legacy fields.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		f, err := os.Open(storeImportPath)
		if err != nil {
			return eris.Wrapf(err, "open %s", storeImportPath)
		}
		defer f.Close() //nolint:errcheck

		return runImport(ctx, st, f, cmd.OutOrStdout())
	},
}

func runImport(ctx context.Context, st store.Store, r io.Reader, out io.Writer) error {
	var docs []model.Document
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return eris.Wrap(err, "decode documents")
	}
	for i, d := range docs {
		if d.ClientID == "" {
			return eris.Errorf("document %d (%s) has no clientId", i+1, d.Filename)
		}
	}

	n, err := st.ImportDocuments(ctx, docs)
	if err != nil {
		return eris.Wrap(err, "import documents")
	}
	fmt.Fprintf(out, "Imported: %d\nSkipped: %d\n", n, int64(len(docs))-n)
	return nil
}

func init() {
	storeImportCmd.Flags().StringVar(&storeImportPath, "file", "", "JSON file of documents (required)")
	_ = storeImportCmd.MarkFlagRequired("file")
	storeCmd.AddCommand(storeMigrateCmd, storeImportCmd)
	rootCmd.AddCommand(storeCmd)
}
