package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/uniconv/uniconv/internal/updater"
)

var outdatedJSON bool

func init() {
	pluginOutdatedCmd.Flags().BoolVar(&outdatedJSON, "json", false, "Output in JSON format")
	pluginCmd.AddCommand(pluginOutdatedCmd)
}

var pluginOutdatedCmd = &cobra.Command{
	Use:   "outdated",
	Short: "List installed plugins with newer releases",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		records, err := a.engine.List()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No plugins installed yet.")
			return nil
		}
		idx, err := a.store.GetIndex(cmd.Context())
		if err != nil {
			return err
		}

		outdated := updater.Check(idx, records)
		if outdatedJSON {
			if outdated == nil {
				outdated = []updater.Outdated{}
			}
			return printJSON(cmd, outdated)
		}
		if len(outdated) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "All plugins are up to date.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tINSTALLED\tLATEST")
		for _, o := range outdated {
			fmt.Fprintf(w, "%s\t%s\t%s\n", o.Name, o.Installed, o.Latest)
		}
		return w.Flush()
	},
}
