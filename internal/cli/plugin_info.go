package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/uniconv/uniconv/internal/errdefs"
	"github.com/uniconv/uniconv/internal/install"
	"github.com/uniconv/uniconv/internal/manifest"
	"github.com/uniconv/uniconv/internal/platform"
)

var (
	infoJSON bool
	infoYAML bool
)

func init() {
	pluginInfoCmd.Flags().BoolVar(&infoJSON, "json", false, "Output in JSON format")
	pluginInfoCmd.Flags().BoolVar(&infoYAML, "yaml", false, "Output in YAML format")
	pluginInfoCmd.MarkFlagsMutuallyExclusive("json", "yaml")
	pluginCmd.AddCommand(pluginInfoCmd)
}

// pluginInfo is the registry manifest joined with local install state.
type pluginInfo struct {
	manifest.Manifest `yaml:",inline"`
	Installed         *install.Record `json:"installed,omitempty" yaml:"installed,omitempty"`
}

var pluginInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show registry details for a plugin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		m, err := a.store.GetManifest(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		rec, err := a.engine.Get(args[0])
		if err != nil && !errors.Is(err, errdefs.ErrNotInstalled) {
			a.log.WithError(err).Warn("reading install record")
		}
		info := pluginInfo{Manifest: *m, Installed: rec}

		switch {
		case infoJSON:
			return printJSON(cmd, info)
		case infoYAML:
			data, err := yaml.Marshal(info)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s\n", m.Name)
		if m.Description != "" {
			fmt.Fprintf(out, "  %s\n", m.Description)
		}
		fmt.Fprintln(out)
		printField(out, "Author", m.Author)
		printField(out, "License", m.License)
		printField(out, "Repository", m.Repository)
		printField(out, "Keywords", strings.Join(m.Keywords, ", "))
		if latest, err := m.Latest(); err == nil {
			printField(out, "Latest", latest.Version)
		}
		if rec != nil {
			printField(out, "Installed", rec.Version)
		} else {
			printField(out, "Installed", "no")
		}

		fmt.Fprintln(out, "\nReleases:")
		for _, r := range m.Releases {
			line := fmt.Sprintf("  %s (%s) [%s]", r.Version, r.Interface, strings.Join(platform.Available(&r), ", "))
			if r.UniconvCompat != "" {
				line += " requires " + r.UniconvCompat
			}
			fmt.Fprintln(out, line)
			for _, d := range r.Dependencies {
				fmt.Fprintf(out, "      depends on %s\n", d)
			}
		}
		return nil
	},
}

func printField(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "  %-12s %s\n", label+":", value)
}
