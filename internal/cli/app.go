package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/uniconv/uniconv/internal/branding"
	"github.com/uniconv/uniconv/internal/cleanhttp"
	"github.com/uniconv/uniconv/internal/config"
	"github.com/uniconv/uniconv/internal/depcheck"
	"github.com/uniconv/uniconv/internal/install"
	"github.com/uniconv/uniconv/internal/logging"
	"github.com/uniconv/uniconv/internal/platform"
	"github.com/uniconv/uniconv/internal/registry"
	"github.com/uniconv/uniconv/internal/userdata"
)

// app holds the components a command works with, built from configuration.
type app struct {
	settings *config.Settings
	log      *logrus.Logger
	layout   userdata.Layout
	store    *registry.Store
	resolver *registry.Resolver
	checker  *depcheck.Checker
	engine   *install.Engine
}

func newApp(cmd *cobra.Command) (*app, error) {
	config.Load()
	settings, err := config.Current()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	level := settings.LogLevel
	if flagVerbose {
		level = "debug"
	}
	log, err := logging.New(level, settings.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	platformKey, err := platform.Resolve(settings.Platform)
	if err != nil {
		return nil, err
	}

	userAgent := branding.UserAgent(buildVersion)
	source, err := registry.NewSource(settings.RegistryURL, cleanhttp.NewClient(settings.HTTPTimeout), userAgent)
	if err != nil {
		return nil, err
	}

	layout := userdata.NewLayout(settings.PluginsDir, settings.CacheDir)
	store := registry.NewStore(source, settings.CacheDir,
		registry.WithLogger(log),
		registry.WithMaxAge(settings.CacheMaxAge),
		registry.WithRetries(settings.FetchRetries, 0),
		registry.WithOffline(flagOffline),
		registry.WithRefresh(flagRefresh),
	)
	checker := depcheck.New(depcheck.WithLogger(log))

	return &app{
		settings: settings,
		log:      log,
		layout:   layout,
		store:    store,
		resolver: registry.NewResolver(store, log),
		checker:  checker,
		engine: install.New(layout, store,
			install.WithHTTPClient(cleanhttp.NewStreamingClient(settings.HTTPTimeout)),
			install.WithPlatform(platformKey),
			install.WithClientVersion(buildVersion),
			install.WithUserAgent(userAgent),
			install.WithChecker(checker),
			install.WithProgress(cmd.ErrOrStderr()),
			install.WithLogger(log),
		),
	}, nil
}
