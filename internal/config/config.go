// Package config builds the process-wide configuration record from the
// environment. The record is read-only after startup.
package config

import "time"

// Default base URLs for the hosted note service. Overridable through the
// environment so tests can point the bridge at a fake backend.
const (
	DefaultAuthBaseURL = "https://auth.simperium.com/1"
	DefaultDataBaseURL = "https://api.simperium.com/1"
)

const (
	DefaultKDFIterations   = 310000
	MinKDFIterations       = 10000
	DefaultSyncIntervalSec = 300
	MinSyncIntervalSec     = 60
	DefaultAPITimeoutSec   = 30
	MinAPITimeoutSec       = 5
	DefaultLogLevel        = "info"
)

// Config holds all configuration for the bridge.
type Config struct {
	Username string
	Password string

	// DBEncryptionKey enables the encrypted cache when non-empty.
	DBEncryptionKey string
	KDFIterations   int
	SyncIntervalSec int
	APITimeoutSec   int
	LogLevel        string
	LogFilePath     string

	AuthBaseURL string
	DataBaseURL string

	// StatusAddr enables the localhost health/stats listener when set,
	// e.g. "127.0.0.1:6391". Empty disables it.
	StatusAddr string

	Debug bool
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.Username == "" {
		return ErrMissingUsername
	}
	if c.Password == "" {
		return ErrMissingPassword
	}
	return nil
}

// Encrypted reports whether the cache should be opened keyed.
func (c *Config) Encrypted() bool {
	return c.DBEncryptionKey != ""
}

// SyncInterval returns the sync-engine cycle interval.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSec) * time.Second
}

// APITimeout returns the per-request HTTP timeout.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSec) * time.Second
}

// DefaultConfig returns a configuration with defaults applied.
func DefaultConfig() *Config {
	return &Config{
		KDFIterations:   DefaultKDFIterations,
		SyncIntervalSec: DefaultSyncIntervalSec,
		APITimeoutSec:   DefaultAPITimeoutSec,
		LogLevel:        DefaultLogLevel,
		AuthBaseURL:     DefaultAuthBaseURL,
		DataBaseURL:     DefaultDataBaseURL,
	}
}
