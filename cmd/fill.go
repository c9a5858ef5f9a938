package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/docfill/internal/fill"
	"github.com/sells-group/docfill/internal/model"
)

var (
	fillClient   string
	fillForm     string
	fillPins     string
	fillTemplate string
	fillOut      string
	fillReport   string
)

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Fill a form from a client profile and write a fill report",
	Long:  "Maps the client profile onto the form schema and writes the values. With --out the form is written as an xlsx workbook (starting from --template when given); otherwise the values are printed as JSON.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		schema, pins, err := loadForm(fillForm, fillPins)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "fill")
		if err != nil {
			return err
		}
		defer env.Close()

		var (
			form   fill.Form
			memory *fill.MemoryForm
			sheet  *fill.XLSXForm
		)
		switch {
		case fillOut == "":
			memory = fill.NewMemoryForm(schema)
			form = memory
		case fillTemplate != "":
			sheet, err = fill.OpenXLSXForm(fillTemplate, schema)
		default:
			sheet, err = fill.NewXLSXForm(schema)
		}
		if err != nil {
			return err
		}
		if sheet != nil {
			defer sheet.Close() //nolint:errcheck
			form = sheet
		}

		out, err := env.Pipeline.FillProfile(ctx, fillClient, schema, form, pins)
		if err != nil {
			return eris.Wrap(err, "fill")
		}

		if sheet != nil {
			if err := sheet.SaveAs(fillOut); err != nil {
				return err
			}
			zap.L().Info("form written", zap.String("path", fillOut))
		}
		if err := writeReport(fillReport, out.Report); err != nil {
			return err
		}

		summary := struct {
			Mapping model.MappingResult `json:"mapping"`
			Result  *model.FillResult   `json:"result"`
			Values  map[string]any      `json:"values,omitempty"`
		}{Mapping: out.Mapping, Result: out.Result}
		if memory != nil {
			summary.Values = memory.Values()
		}
		return printJSON(cmd.OutOrStdout(), summary)
	},
}

// writeReport writes the markdown report to path, rendered to HTML when
// path ends in .html. An empty path writes nothing.
func writeReport(path, report string) error {
	if path == "" {
		return nil
	}
	if strings.EqualFold(filepath.Ext(path), ".html") {
		html, err := fill.RenderReportHTML(report)
		if err != nil {
			return err
		}
		report = html
	}
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return eris.Wrapf(err, "write report %s", path)
	}
	return nil
}

func init() {
	fillCmd.Flags().StringVar(&fillClient, "client", "", "client ID (required)")
	fillCmd.Flags().StringVar(&fillForm, "form", "", "form schema file (required)")
	fillCmd.Flags().StringVar(&fillPins, "pins", "", "pinned mappings file")
	fillCmd.Flags().StringVar(&fillTemplate, "template", "", "xlsx template to fill (with --out)")
	fillCmd.Flags().StringVar(&fillOut, "out", "", "write the filled form to this xlsx path")
	fillCmd.Flags().StringVar(&fillReport, "report", "", "write the fill report to this path (markdown, or HTML for .html)")
	_ = fillCmd.MarkFlagRequired("client")
	_ = fillCmd.MarkFlagRequired("form")
	rootCmd.AddCommand(fillCmd)
}
