package config

import (
	"os"
	"strconv"
	"strings"
)

// Load creates a configuration from environment variables with defaults
// and range clamping applied. Validation is deferred so CLI flag
// overrides can be applied first; call cfg.Validate() in the caller.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	applyEnvironment(cfg)
	return cfg, nil
}

func applyEnvironment(cfg *Config) {
	if v := os.Getenv("USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("DB_ENCRYPTION_KEY"); v != "" {
		cfg.DBEncryptionKey = v
	}

	cfg.KDFIterations = intEnv("DB_ENCRYPTION_KDF_ITERATIONS", cfg.KDFIterations, MinKDFIterations)
	cfg.SyncIntervalSec = intEnv("SYNC_INTERVAL_SECONDS", cfg.SyncIntervalSec, MinSyncIntervalSec)
	cfg.APITimeoutSec = intEnv("API_TIMEOUT_SECONDS", cfg.APITimeoutSec, MinAPITimeoutSec)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = normalizeLogLevel(v, cfg.LogLevel)
	}
	if v := os.Getenv("LOG_FILE_PATH"); v != "" {
		cfg.LogFilePath = v
	}
	if v := os.Getenv("AUTH_BASE_URL"); v != "" {
		cfg.AuthBaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("DATA_BASE_URL"); v != "" {
		cfg.DataBaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("STATUS_ADDR"); v != "" {
		cfg.StatusAddr = v
	}
	if v := os.Getenv("DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}
}

// intEnv parses an integer environment variable, falling back to def on
// missing or malformed values and clamping to min.
func intEnv(key string, def, min int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	if n < min {
		return min
	}
	return n
}

func normalizeLogLevel(v, def string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "trace", "debug", "info", "warn", "error", "fatal":
		return strings.ToLower(strings.TrimSpace(v))
	default:
		return def
	}
}
