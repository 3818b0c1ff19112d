package config

import (
	"os"
	"path/filepath"
	"strings"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks that all configuration values are within acceptable ranges
// and returns the first error encountered, or nil if valid.
func Validate(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}
	if cfg.Mint.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if cfg.Mint.RegistryTTL <= 0 {
		return ErrInvalidRegistryTTL
	}
	if cfg.Send.Tolerance < 0 || cfg.Send.Tolerance >= 1 {
		return ErrInvalidTolerance
	}
	if cfg.Recovery.StaleAfter <= 0 {
		return ErrInvalidStaleAfter
	}
	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		return ErrInvalidLogLevel
	}
	return nil
}

// defaultDataDir resolves the per-user wallet directory, falling back to the
// current directory when the home directory is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ecash"
	}
	return filepath.Join(home, ".ecash")
}
