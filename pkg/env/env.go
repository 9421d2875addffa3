// Package env reads the handful of settings that must be known before the
// envconfig-driven config is loaded.
package env

import (
	"os"
	"strings"
)

// Prefix is prepended by Key.
const Prefix = "FARMLINK_"

// Key returns the prefixed variable name for name.
func Key(name string) string {
	return Prefix + strings.ToUpper(name)
}

// String returns the trimmed value of the prefixed variable, or fallback
// when it is unset or blank.
func String(name, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(Key(name))); val != "" {
		return val
	}
	return fallback
}
