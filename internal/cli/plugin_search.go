package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	searchKeyword string
	searchJSON    bool
)

func init() {
	pluginSearchCmd.Flags().StringVarP(&searchKeyword, "keyword", "k", "", "Only show plugins tagged with this keyword")
	pluginSearchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output in JSON format")
	pluginCmd.AddCommand(pluginSearchCmd)
}

var pluginSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the registry index",
	Long:  `Search plugin names and descriptions in the registry index. With no query, every plugin is listed.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		idx, err := a.store.GetIndex(cmd.Context())
		if err != nil {
			return err
		}

		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		hits := idx.Search(query, searchKeyword)
		if searchJSON {
			return printJSON(cmd, hits)
		}
		if len(hits) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No plugins found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tLATEST\tINTERFACE\tDESCRIPTION")
		for _, p := range hits {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.Latest, p.Interface, orDash(p.Description))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		if updated := idx.Updated(); !updated.IsZero() {
			fmt.Fprintf(cmd.OutOrStdout(), "\nIndex updated %s\n", updated.Format("2006-01-02 15:04 MST"))
		}
		return nil
	},
}
