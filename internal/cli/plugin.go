package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pluginCmd)
}

var pluginCmd = &cobra.Command{
	Use:     "plugin",
	Aliases: []string{"plugins"},
	Short:   "Install, update and inspect plugins",
	Long: `Manage conversion plugins from the plugin registry.

Install targets are plugin names, optionally pinned to a version
(ascii@1.1.0), or collections prefixed with "+" (+essentials).`,
}
