package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uniconv/uniconv/internal/install"
	"github.com/uniconv/uniconv/internal/manifest"
	"github.com/uniconv/uniconv/internal/registry"
)

var (
	installForce       bool
	installNoDepsCheck bool
	installJobs        int
)

func init() {
	pluginInstallCmd.Flags().BoolVar(&installForce, "force", false, "Reinstall even if the version is already installed")
	pluginInstallCmd.Flags().BoolVar(&installNoDepsCheck, "no-deps-check", false, "Skip the dependency check after installing")
	pluginInstallCmd.Flags().IntVarP(&installJobs, "jobs", "j", 0, "Plugins installed in parallel (default from config)")
	pluginCmd.AddCommand(pluginInstallCmd)
}

var pluginInstallCmd = &cobra.Command{
	Use:   "install <name[@version]|+collection>...",
	Short: "Install plugins or collections",
	Long: `Install one or more plugins. Collections ("+name") expand to their member
plugins. Each plugin installs independently: one failure does not stop the
others, and a failed install leaves any previous version in place.

  uniconv plugin install ascii
  uniconv plugin install ascii@1.1.0
  uniconv plugin install +essentials`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}

		targets, err := expandTargets(cmd, a, args)
		if err != nil {
			return err
		}

		jobs := installJobs
		if jobs <= 0 {
			jobs = a.settings.Concurrency
		}
		outcomes, err := a.engine.InstallMany(cmd.Context(), targets, jobs, install.Options{
			Force:         installForce,
			SkipDepsCheck: installNoDepsCheck,
		})
		for _, o := range outcomes {
			printOutcome(cmd.OutOrStdout(), "installed", o)
		}
		return err
	},
}

// expandTargets resolves collection references while keeping explicit
// version pins on plain names. The first mention of a plugin wins.
func expandTargets(cmd *cobra.Command, a *app, args []string) ([]install.Target, error) {
	var (
		targets []install.Target
		seen    = make(map[string]bool)
	)
	add := func(name, version string) {
		if seen[name] {
			return
		}
		seen[name] = true
		targets = append(targets, install.Target{Name: name, Version: version})
	}

	for _, arg := range args {
		if !registry.IsCollectionRef(arg) {
			name, version := manifest.ParseTarget(arg)
			add(name, version)
			continue
		}
		names, err := a.resolver.Resolve(cmd.Context(), arg)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", arg, err)
		}
		for _, n := range names {
			add(n, manifest.VersionLatest)
		}
	}
	return targets, nil
}
