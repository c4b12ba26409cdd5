package cmd

import (
	"github.com/spf13/cobra"
)

// newSyncCmd builds the 'sync' subcommand: an incremental newest-first merge.
func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Merges the newest listings into an existing mirror",
		Long: `Pages the whole domain newest-first, up to one threshold's worth of
listings, and merges each page into the catalog: unseen listings are created,
known listings get their mutable fields and changed attribute values
refreshed in place.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return app.orch.IncrementalSync(cmd.Context())
		},
	}
}
