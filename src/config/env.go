package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names.
const (
	EnvListen          = "ENTROPYD_LISTEN"
	EnvMaxRequestBytes = "ENTROPYD_MAX_REQUEST_BYTES"
	EnvLogLevel        = "LOG_LEVEL"
	EnvHealthInterval  = "RNG_HEALTH_INTERVAL"
	EnvAPIKey          = "API_KEY" // #nosec G101 -- name of the variable, not a credential
)

// ApplyEnvironment applies environment variable overrides to the configuration.
// Values that do not parse are ignored.
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Listen = v
	}

	if v := os.Getenv(EnvMaxRequestBytes); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			cfg.MaxRequestBytes = n
		}
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}

	// Interval in milliseconds.
	if v := os.Getenv(EnvHealthInterval); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.HealthInterval = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv(EnvAPIKey); v != "" {
		cfg.APIKey = v
	}
}
