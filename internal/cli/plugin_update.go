package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uniconv/uniconv/internal/install"
)

var (
	updateAll         bool
	updateForce       bool
	updateNoDepsCheck bool
)

func init() {
	pluginUpdateCmd.Flags().BoolVar(&updateAll, "all", false, "Update every installed plugin")
	pluginUpdateCmd.Flags().BoolVar(&updateForce, "force", false, "Reinstall even if already at the latest version")
	pluginUpdateCmd.Flags().BoolVar(&updateNoDepsCheck, "no-deps-check", false, "Skip the dependency check after updating")
	pluginCmd.AddCommand(pluginUpdateCmd)
}

var pluginUpdateCmd = &cobra.Command{
	Use:   "update <name>... | --all",
	Short: "Update installed plugins to their latest release",
	RunE: func(cmd *cobra.Command, args []string) error {
		if updateAll == (len(args) > 0) {
			return errors.New("specify plugin names or --all")
		}
		a, err := newApp(cmd)
		if err != nil {
			return err
		}

		names := args
		if updateAll {
			records, err := a.engine.List()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No plugins installed yet.")
				return nil
			}
			for _, r := range records {
				names = append(names, r.Name)
			}
		}

		outcomes, err := a.engine.UpdateMany(cmd.Context(), names, a.settings.Concurrency, install.Options{
			Force:         updateForce,
			SkipDepsCheck: updateNoDepsCheck,
		})
		for _, o := range outcomes {
			printOutcome(cmd.OutOrStdout(), "updated", o)
		}
		return err
	},
}
