package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newServeCmd runs the HTTP API and the discovery worker pool.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the admission HTTP API and worker pool",
		Long: `Serves /v1/admissions, /v1/discoveries and /v1/fetches alongside health
and metrics endpoints. Discoveries posted in bulk are admitted by a bounded
worker pool. The seed file, when configured, is loaded before serving.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Run(cmd.Context()); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}
}
