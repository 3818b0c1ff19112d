// Package config loads wallet configuration from a file and environment
// variables, with validated defaults suitable for running against a public
// mint out of the box.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all wallet configuration.
type Config struct {
	// DataDir is where the proof database and encrypted seed live.
	DataDir string `mapstructure:"data_dir"`

	Mint     MintConfig     `mapstructure:"mint"`
	Send     SendConfig     `mapstructure:"send"`
	Recovery RecoveryConfig `mapstructure:"recovery"`
	Log      LogConfig      `mapstructure:"log"`
}

type MintConfig struct {
	// Timeout bounds each mint HTTP request.
	Timeout time.Duration `mapstructure:"timeout"`

	// RegistryTTL is how long fetched mint metadata stays fresh.
	RegistryTTL time.Duration `mapstructure:"registry_ttl"`
}

type SendConfig struct {
	// Tolerance bounds overpayment on offline sends, as a fraction of the
	// requested amount.
	Tolerance float64 `mapstructure:"tolerance"`
}

type RecoveryConfig struct {
	// StaleAfter is the age past which a staged pending send is no longer
	// replayed on startup.
	StaleAfter time.Duration `mapstructure:"stale_after"`

	// ReclaimStalePending reconciles stale staging records against the mint
	// instead of discarding them.
	ReclaimStalePending bool `mapstructure:"reclaim_stale_pending"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables. Environment
// variables override file values, prefix ECASH, nested keys joined with
// underscore: ECASH_MINT_TIMEOUT, ECASH_LOG_LEVEL, and so on.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("mint.timeout", "30s")
	v.SetDefault("mint.registry_ttl", "1h")
	v.SetDefault("send.tolerance", 0.05)
	v.SetDefault("recovery.stale_after", "1h")
	v.SetDefault("recovery.reclaim_stale_pending", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(defaultDataDir())
	}

	v.SetEnvPrefix("ECASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; defaults and env vars can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
