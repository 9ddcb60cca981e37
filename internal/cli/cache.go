package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cacheCmd.AddCommand(cacheCleanCmd)
	rootCmd.AddCommand(cacheCmd)
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the registry cache",
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove cached registry responses",
	Long:  `Remove every cached index, collections and manifest response. Installed plugins are not touched.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		n, err := a.store.Clean()
		if err != nil {
			return fmt.Errorf("cleaning cache: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached responses from %s\n", n, a.layout.CacheDir)
		return nil
	},
}
