// Package config loads sizehist settings from a YAML file, the environment and flags.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SIZEHIST_CACHE.
const EnvPrefix = "SIZEHIST"

// DefaultConfigName is looked up in the working directory when no file is given.
const DefaultConfigName = "sizehist"

// Keys shared by the config file, environment variables and command-line flags.
const (
	KeyCache     = "cache"
	KeyExclude   = "exclude"
	KeyRefresh   = "refresh"
	KeyOnCorrupt = "on-corrupt"
	KeyWorkers   = "workers"
	KeyImages    = "images"
)

// DefaultCachePath is the cache file used when none is configured.
const DefaultCachePath = "sizehist-cache.json"

// DefaultExcludes contains the default exclusion patterns.
//
//nolint:gochecknoglobals // Config constant
var DefaultExcludes = []string{`.*\.git/.*`, `.*node_modules/.*`}

// CorruptPolicies lists the accepted values of the on-corrupt setting.
//
//nolint:gochecknoglobals // Config constant
var CorruptPolicies = []string{"fail", "rescan"}

// Image is a named directory tree to scan.
type Image struct {
	Name string `mapstructure:"name"`
	Root string `mapstructure:"root"`
}

// Config holds the resolved settings.
type Config struct {
	// CachePath is the cache file location.
	CachePath string `mapstructure:"cache"`
	// Images are the directory trees to scan on a cache miss.
	Images []Image `mapstructure:"images"`
	// Excludes contains regex patterns of paths to skip.
	Excludes []string `mapstructure:"exclude"`
	// Refresh forces a rescan.
	Refresh bool `mapstructure:"refresh"`
	// OnCorrupt is "fail" or "rescan".
	OnCorrupt string `mapstructure:"on-corrupt"`
	// Workers is the number of walker goroutines (0 = default).
	Workers int `mapstructure:"workers"`
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyCache, DefaultCachePath)
	v.SetDefault(KeyExclude, DefaultExcludes)
	v.SetDefault(KeyRefresh, false)
	v.SetDefault(KeyOnCorrupt, "fail")
	v.SetDefault(KeyWorkers, 0)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file and decodes all settings from v.
// An explicit path must exist; without one, DefaultConfigName is searched for
// in the working directory and silently skipped when absent.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings that cannot be represented by their type alone.
func (c *Config) Validate() error {
	if c.CachePath == "" {
		return errors.New("cache path must not be empty")
	}

	if !slices.Contains(CorruptPolicies, c.OnCorrupt) {
		return fmt.Errorf("invalid on-corrupt policy %q: must be one of %v", c.OnCorrupt, CorruptPolicies)
	}

	if c.Workers < 0 {
		return errors.New("workers cannot be negative")
	}

	for i, image := range c.Images {
		if image.Root == "" {
			return fmt.Errorf("image %d (%q): root is required", i, image.Name)
		}
	}

	return nil
}

// ParseImage parses a "name=dir" or "dir" argument.
func ParseImage(arg string) (Image, error) {
	name, root, found := strings.Cut(arg, "=")
	if !found {
		name, root = "", arg
	}

	if root == "" {
		return Image{}, fmt.Errorf("image %q: missing directory", arg)
	}

	return Image{Name: name, Root: root}, nil
}
