package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/uniconv/uniconv/internal/branding"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Configuration keys.
const (
	KeyRegistryURL  = "registry_url"
	KeyPluginsDir   = "plugins_dir"
	KeyCacheDir     = "cache_dir"
	KeyCacheMaxAge  = "cache_max_age"
	KeyConcurrency  = "concurrency"
	KeyFetchRetries = "fetch_retries"
	KeyHTTPTimeout  = "http_timeout"
	KeyPlatform     = "platform"
	KeyLogLevel     = "log_level"
	KeyLogFormat    = "log_format"
)

// Keys lists every configuration key in display order.
func Keys() []string {
	return []string{
		KeyRegistryURL, KeyPluginsDir, KeyCacheDir, KeyCacheMaxAge, KeyConcurrency,
		KeyFetchRetries, KeyHTTPTimeout, KeyPlatform, KeyLogLevel, KeyLogFormat,
	}
}

// Known reports whether key is a configuration key.
func Known(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// Settings is the typed view of the loaded configuration.
type Settings struct {
	RegistryURL  string
	PluginsDir   string
	CacheDir     string
	CacheMaxAge  time.Duration
	Concurrency  int
	FetchRetries int
	HTTPTimeout  time.Duration
	Platform     string
	LogLevel     string
	LogFormat    string
}

// Dir returns the path to the config directory (~/.uniconv/).
// UNICONV_HOME overrides it.
func Dir() string {
	if v := os.Getenv(branding.EnvVar("HOME")); v != "" {
		return v
	}
	home, err := homedir.Dir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file (~/.uniconv/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault(KeyRegistryURL, branding.RegistryURL())
	viper.SetDefault(KeyPluginsDir, filepath.Join(Dir(), "plugins"))
	viper.SetDefault(KeyCacheDir, filepath.Join(Dir(), "cache"))
	viper.SetDefault(KeyCacheMaxAge, time.Hour)
	viper.SetDefault(KeyConcurrency, 4)
	viper.SetDefault(KeyFetchRetries, 3)
	viper.SetDefault(KeyHTTPTimeout, 60*time.Second)
	viper.SetDefault(KeyPlatform, "")
	viper.SetDefault(KeyLogLevel, "warn")
	viper.SetDefault(KeyLogFormat, "text")
}

// Load initializes Viper to read from the config file and environment.
func Load() {
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.AutomaticEnv()
	setDefaults()

	// Ignore error if config file doesn't exist yet.
	_ = viper.ReadInConfig()
}

// Current returns the typed settings. Load must have been called.
// Path values have a leading ~ expanded.
func Current() (*Settings, error) {
	s := &Settings{
		RegistryURL:  viper.GetString(KeyRegistryURL),
		CacheMaxAge:  viper.GetDuration(KeyCacheMaxAge),
		Concurrency:  viper.GetInt(KeyConcurrency),
		FetchRetries: viper.GetInt(KeyFetchRetries),
		HTTPTimeout:  viper.GetDuration(KeyHTTPTimeout),
		Platform:     viper.GetString(KeyPlatform),
		LogLevel:     viper.GetString(KeyLogLevel),
		LogFormat:    viper.GetString(KeyLogFormat),
	}

	var err error
	if s.PluginsDir, err = homedir.Expand(viper.GetString(KeyPluginsDir)); err != nil {
		return nil, fmt.Errorf("expanding %s: %w", KeyPluginsDir, err)
	}
	if s.CacheDir, err = homedir.Expand(viper.GetString(KeyCacheDir)); err != nil {
		return nil, fmt.Errorf("expanding %s: %w", KeyCacheDir, err)
	}

	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if s.FetchRetries < 0 {
		s.FetchRetries = 0
	}
	return s, nil
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
