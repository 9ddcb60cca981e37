package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	pluginCmd.AddCommand(pluginUninstallCmd)
}

var pluginUninstallCmd = &cobra.Command{
	Use:     "uninstall <name>...",
	Aliases: []string{"remove", "rm"},
	Short:   "Remove installed plugins",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		for _, name := range args {
			res, err := a.engine.Uninstall(cmd.Context(), name)
			if err != nil {
				return err
			}
			if res.Record != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s removed\n", markOK, name, res.Record.Version)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s removed\n", markOK, name)
			}
		}
		return nil
	},
}
