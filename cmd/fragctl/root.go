package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:           "fragctl",
		Short:         "fragctl converts fragments offline and mints development tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")

	cmd.AddCommand(
		newConvertCmd(),
		newTypesCmd(&jsonOutput),
		newTokenCmd(&jsonOutput),
	)

	return cmd
}
