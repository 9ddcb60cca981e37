package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/uniconv/uniconv/internal/registry"
)

func init() {
	rootCmd.AddCommand(collectionsCmd)
}

var collectionsCmd = &cobra.Command{
	Use:   "collections [name]",
	Short: "List plugin collections",
	Long: `List the collections published in the registry. With a name, show the
plugins the collection expands to, in install order.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			name := strings.TrimPrefix(args[0], registry.CollectionPrefix)
			members, err := a.resolver.Resolve(cmd.Context(), registry.CollectionPrefix+name)
			if err != nil {
				return err
			}
			for _, m := range members {
				fmt.Fprintln(out, m)
			}
			return nil
		}

		cols, err := a.store.GetCollections(cmd.Context())
		if err != nil {
			return err
		}
		if len(cols.Collections) == 0 {
			fmt.Fprintln(out, "No collections published.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tPLUGINS\tDESCRIPTION")
		for _, c := range cols.Collections {
			fmt.Fprintf(w, "%s%s\t%d\t%s\n", registry.CollectionPrefix, c.Name, len(c.Plugins), orDash(c.Description))
		}
		return w.Flush()
	},
}
