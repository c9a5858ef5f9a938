package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/docfill/internal/model"
	"github.com/sells-group/docfill/internal/registry"
)

var (
	mapClient string
	mapForm   string
	mapPins   string
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Map a client profile onto a form schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		schema, pins, err := loadForm(mapForm, mapPins)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, "map")
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Pipeline.MapProfile(ctx, mapClient, schema, pins)
		if err != nil {
			return eris.Wrap(err, "map")
		}
		return printJSON(cmd.OutOrStdout(), out.Mapping)
	},
}

// loadForm reads a form schema and, when pinsPath is set, its pinned mappings.
func loadForm(formPath, pinsPath string) (*model.FormSchema, []model.FieldMapping, error) {
	schema, err := registry.LoadFormSchema(formPath)
	if err != nil {
		return nil, nil, err
	}
	if pinsPath == "" {
		return schema, nil, nil
	}
	pins, err := registry.LoadPins(pinsPath)
	if err != nil {
		return nil, nil, err
	}
	return schema, pins, nil
}

func init() {
	mapCmd.Flags().StringVar(&mapClient, "client", "", "client ID (required)")
	mapCmd.Flags().StringVar(&mapForm, "form", "", "form schema file (required)")
	mapCmd.Flags().StringVar(&mapPins, "pins", "", "pinned mappings file")
	_ = mapCmd.MarkFlagRequired("client")
	_ = mapCmd.MarkFlagRequired("form")
	rootCmd.AddCommand(mapCmd)
}
