package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/uniconv/uniconv/internal/branding"
	"github.com/uniconv/uniconv/internal/config"
	"github.com/uniconv/uniconv/internal/updater"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var (
	flagVerbose bool
	flagOffline bool
	flagRefresh bool
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&flagOffline, "offline", false, "Use cached registry data only")
	rootCmd.PersistentFlags().BoolVar(&flagRefresh, "refresh", false, "Revalidate cached registry data regardless of age")
}

// Commands that manage plugin state themselves skip the update banner.
var noBanner = map[string]bool{
	"install":  true,
	"update":   true,
	"outdated": true,
	"version":  true,
	"config":   true,
	"get":      true,
	"set":      true,
	"clean":    true,
}

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` installs, updates and removes conversion plugins
published in the plugin registry.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noBanner[cmd.Name()] || !cmd.Runnable() {
			return
		}
		// Non-blocking banner from the cached index.
		a, err := newApp(cmd)
		if err != nil {
			return
		}
		idx, ok := a.store.CachedIndex()
		if !ok {
			return
		}
		records, err := a.engine.List()
		if err != nil {
			return
		}
		updater.CheckAndPrintBanner(cmd.ErrOrStderr(), config.Dir(), idx, records)
	},
}

// Execute runs the root command with build info injected via ldflags.
// Cancelling ctx aborts in-flight downloads and installs.
func Execute(ctx context.Context, version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	return rootCmd.ExecuteContext(ctx)
}
