// Package config loads wfmirror configuration from a config file and
// WFMIRROR_* environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved process configuration.
type Config struct {
	// APIKey is the bearer credential for the remote outline API.
	APIKey string `mapstructure:"api_key"`

	// APIBaseURL overrides the remote endpoint; empty means production.
	APIBaseURL string `mapstructure:"api_base_url"`

	// DBPath is the mirror database file.
	DBPath string `mapstructure:"db_path"`

	// LogPath is the rotating log file.
	LogPath string `mapstructure:"log_path"`

	// FullSyncInterval is the minimum spacing between export calls.
	FullSyncInterval time.Duration `mapstructure:"full_sync_interval"`

	// StalenessThreshold is how old the mirror may be before reads want
	// a refresh.
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold"`

	// LeaseTTL is how old a sync lease may be before it is broken.
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`

	// ReconcileDepth is how many child levels a partial sync reconciles.
	ReconcileDepth int `mapstructure:"reconcile_depth"`

	// ExcludedNames hides nodes from subtree reads; they stay reachable
	// through bookmarks.
	ExcludedNames []string `mapstructure:"excluded_names"`
}

// Dir returns the wfmirror data directory, created on demand.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config dir: %w", err)
	}
	dir := filepath.Join(base, "wfmirror")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config dir: %w", err)
	}
	return dir, nil
}

// Load reads configuration. A missing config file is not an error; env
// vars and defaults still apply.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("WFMIRROR")
	v.AutomaticEnv()

	// Unmarshal only sees env-provided keys that viper already knows
	// about, so every key gets a default.
	v.SetDefault("api_key", "")
	v.SetDefault("api_base_url", "")
	v.SetDefault("excluded_names", []string{})
	v.SetDefault("db_path", filepath.Join(dir, "mirror.db"))
	v.SetDefault("log_path", filepath.Join(dir, "wfmirror.log"))
	v.SetDefault("full_sync_interval", "60s")
	v.SetDefault("staleness_threshold", "1h")
	v.SetDefault("lease_ttl", "5m")
	v.SetDefault("reconcile_depth", 1)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes the API key (and nothing else) to the config file, creating
// it if needed. Used by the interactive init flow.
func Save(apiKey string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "config.toml")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	_ = v.ReadInConfig() // keep existing keys when present

	v.Set("api_key", apiKey)
	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}
