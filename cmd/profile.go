package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var profileClient string

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print a client profile with field provenance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "map")
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Pipeline.Profiles().Get(ctx, profileClient)
		if err != nil {
			return eris.Wrapf(err, "load profile %s", profileClient)
		}
		return printJSON(cmd.OutOrStdout(), p)
	},
}

func init() {
	profileCmd.Flags().StringVar(&profileClient, "client", "", "client ID (required)")
	_ = profileCmd.MarkFlagRequired("client")
	rootCmd.AddCommand(profileCmd)
}
