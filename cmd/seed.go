package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newSeedCmd loads a domain list straight into the eligibility store.
func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Loads seed domains into the crawl queue",
		Long: `Reads a list of bare domains or absolute URLs (local path or gs://
bucket/object) and queues each at depth 0. Existing queue items are left
untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			res, err := appInstance.Seeds().LoadFile(cmd.Context(), file)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "inserted=%d skipped=%d invalid=%d\n", res.Inserted, res.Skipped, res.Invalid)
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "seed list to load")
	return cmd
}
