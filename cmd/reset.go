package cmd

import (
	"github.com/spf13/cobra"
)

// newResetCmd builds the 'reset' subcommand: it empties the partition tree
// and the listing tables.
func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discards the partition tree and the mirrored catalog",

		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return app.orch.Reset(cmd.Context())
		},
	}
}
