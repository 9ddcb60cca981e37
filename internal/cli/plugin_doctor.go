package cli

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/uniconv/uniconv/internal/errdefs"
)

func init() {
	pluginCmd.AddCommand(pluginDoctorCmd)
}

var pluginDoctorCmd = &cobra.Command{
	Use:   "doctor [name]...",
	Short: "Check dependencies of installed plugins",
	Long: `Re-run the dependency check for installed plugins (all of them when no
name is given) and report plugin directories that have no install record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		names := args
		if len(names) == 0 {
			records, err := a.engine.List()
			if err != nil {
				return err
			}
			for _, r := range records {
				names = append(names, r.Name)
			}

			orphans, err := a.engine.Orphans()
			if err != nil {
				return err
			}
			for _, o := range orphans {
				fmt.Fprintf(out, "%s %s has no install record (remove it with `plugin uninstall %s`)\n", markWarn, o, o)
			}
		}

		var result *multierror.Error
		for _, name := range names {
			report, err := a.engine.CheckDependencies(cmd.Context(), name)
			if err != nil {
				fmt.Fprintf(out, "%s %s: %v\n", markFail, name, err)
				result = multierror.Append(result, errdefs.Op("doctor", name, err))
				continue
			}
			mark := markOK
			if !report.OK() {
				mark = markWarn
				result = multierror.Append(result, errdefs.Op("doctor", name, report.Err()))
			}
			fmt.Fprintf(out, "%s %s\n", mark, name)
			printReport(out, report, false)
		}
		return result.ErrorOrNil()
	},
}
