// Package config manages user-level settings stored at ~/.uniconv/config.yaml.
// It loads the file and UNICONV_* environment overrides through Viper and
// exposes them as typed Settings for the registry, cache and install engine.
package config
