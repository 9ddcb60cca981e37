package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listJSON bool

func init() {
	pluginListCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	pluginCmd.AddCommand(pluginListCmd)
}

var pluginListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List installed plugins",
	Long:    `List installed plugins from local install records. The registry is not contacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		records, err := a.engine.List()
		if err != nil {
			return err
		}

		if listJSON {
			return printJSON(cmd, records)
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No plugins installed yet.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tVERSION\tINTERFACE\tPLATFORM")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Version, r.Interface, orDash(r.Platform))
		}
		return w.Flush()
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
