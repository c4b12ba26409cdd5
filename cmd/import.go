package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkosyakov/autocom-mirror/internal/syncer"
)

// newImportCmd builds the 'import' subcommand: a fresh import over an empty
// partition table.
func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Rebuilds the mirror from scratch",
		Long: `Resolves the year/price partition tree over the configured domain,
truncates the listing tables and pages through every fetchable slice. Refuses
to run while partition nodes from a previous run are still stored; run
'reset' first to discard them.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			err = app.orch.FreshImport(cmd.Context())
			if errors.Is(err, syncer.ErrRangesNotEmpty) {
				return fmt.Errorf("%w (run 'autocom-mirror reset' to discard the previous run)", err)
			}
			return err
		},
	}
}
