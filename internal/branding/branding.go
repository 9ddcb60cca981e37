// Package branding provides compile-time identity values for the CLI.
//
// Values live in branding.yaml next to this file and are baked into the
// binary with //go:embed. Hard defaults cover a missing or empty file.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName     string `yaml:"cli_name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
	HomeDir     string `yaml:"home_dir"`
	EnvPrefix   string `yaml:"env_prefix"`
	GoModule    string `yaml:"go_module"`
	RegistryURL string `yaml:"registry_url"`
}

func load() {
	once.Do(func() {
		defaults = brand{
			CLIName:     "uniconv",
			DisplayName: "Uniconv",
			Description: "Universal file converter with pluggable backends",
			HomeDir:     ".uniconv",
			EnvPrefix:   "UNICONV",
			GoModule:    "github.com/uniconv/uniconv",
			RegistryURL: "https://raw.githubusercontent.com/uniconv/uniconv-plugins/main",
		}
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "uniconv").
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name.
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// HomeDir returns the dot-directory name under $HOME (e.g., ".uniconv").
func HomeDir() string { load(); return defaults.HomeDir }

// EnvPrefix returns the environment variable prefix (e.g., "UNICONV").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// GoModule returns the Go module path. Not consumed at runtime.
func GoModule() string { load(); return defaults.GoModule }

// RegistryURL returns the default plugin registry base URL.
func RegistryURL() string { load(); return defaults.RegistryURL }

// UserAgent returns the User-Agent sent with registry and artifact requests.
func UserAgent(version string) string {
	load()
	return defaults.CLIName + "/" + version
}

// EnvVar returns a fully qualified env var name, e.g., EnvVar("HOME") → "UNICONV_HOME".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
