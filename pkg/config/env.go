// Package config provides shared environment variable helpers.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// EnvOr returns the environment variable value or a fallback default.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvOrInt returns an integer environment variable or a fallback default.
// Logs a warning if the value is set but not parseable.
func EnvOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env var, using fallback", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return n
}

// EnvOrBool returns a boolean environment variable or a fallback default.
// Accepts the strconv.ParseBool forms ("true", "1", "FALSE", ...).
func EnvOrBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean env var, using fallback", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return b
}

// EnvOrDuration returns a duration environment variable ("15s", "2m") or a
// fallback default. Logs a warning if the value is set but not parseable.
func EnvOrDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration env var, using fallback", "key", key, "value", v, "fallback", fallback)
		return fallback
	}
	return d
}
