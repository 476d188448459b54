package env

import (
	"os"
	"strings"
)

// Prefix namespaces every variable the pickup binaries read.
const Prefix = "PICKUP_"

// Get returns the trimmed value of key, or fallback when it is unset or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// Pickup reads Prefix+name, so callers pass "LOG_FORMAT" rather than the full key.
func Pickup(name, fallback string) string {
	return Get(Prefix+strings.ToUpper(name), fallback)
}
