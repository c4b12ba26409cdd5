// Package cmd defines the CLI commands of the mirror executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

// appKeyType keys the application bundle in the command context.
type appKeyType string

const appKey appKeyType = "app"

// newRootCmd builds the root command. Services are wired once in
// PersistentPreRunE and shared by every subcommand through the context.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autocom-mirror",
		Short: "Mirrors a remote vehicle listing catalog into Postgres.",
		Long: `autocom-mirror maintains a local relational copy of a remote vehicle
listing catalog. It partitions the year/price search space into slices small
enough to page through completely, fetches them concurrently and normalizes
each listing into sellers, vehicles, images and attribute values.`,

		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if app, ok := cmd.Context().Value(appKey).(*application); ok && app != nil {
				app.close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML; environment overrides with MIRROR_ prefix)")

	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newResetCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*application, error) {
	app, ok := ctx.Value(appKey).(*application)
	if !ok || app == nil {
		return nil, errors.New("application services not initialized")
	}
	return app, nil
}

// Execute is the main entry point. It cancels the run context on SIGINT or
// SIGTERM so an interrupted run stops at the next batch boundary.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
