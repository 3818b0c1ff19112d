package config

import "errors"

var (
	// ErrEmptyDataDir indicates the data directory path is empty.
	ErrEmptyDataDir = errors.New("config: data directory must not be empty")

	// ErrInvalidTimeout indicates the mint request timeout is not positive.
	ErrInvalidTimeout = errors.New("config: mint timeout must be positive")

	// ErrInvalidRegistryTTL indicates the mint metadata TTL is not positive.
	ErrInvalidRegistryTTL = errors.New("config: mint registry TTL must be positive")

	// ErrInvalidTolerance indicates the send tolerance is outside [0, 1).
	ErrInvalidTolerance = errors.New("config: send tolerance must be in [0, 1)")

	// ErrInvalidStaleAfter indicates the recovery stale cutoff is not positive.
	ErrInvalidStaleAfter = errors.New("config: recovery stale_after must be positive")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")
)
