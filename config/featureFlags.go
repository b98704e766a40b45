package config

import (
	"os"
	"strings"
)

// ProgressCacheDisabled bypasses the Redis progress snapshot so every
// read recomputes from MySQL. Kill switch for when cached aggregates are
// suspected stale during an incident.
//
// Set via env:
// - DISABLE_PROGRESS_CACHE=true
func ProgressCacheDisabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("DISABLE_PROGRESS_CACHE")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
