package httpapi

import (
	"strconv"
	"time"
)

// parseTimeRange parses the `<int><unit>` time_range grammar shared by
// /node/historical-metrics and /node/historical-bmc (spec §6), returning
// def for anything malformed. Unlike internal/rules.ParseDuration (which
// degrades a malformed rule for_duration to zero), an invalid time_range
// here falls back to the route's own documented default instead of zero,
// per spec §6 "Invalid → default 1h (historical-metrics: 10m,
// historical-bmc: 1h)".
func parseTimeRange(s string, def time.Duration) time.Duration {
	if len(s) < 2 {
		return def
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return def
	}
	switch unit {
	case 's':
		return time.Duration(n) * time.Second
	case 'm':
		return time.Duration(n) * time.Minute
	case 'h':
		return time.Duration(n) * time.Hour
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	default:
		return def
	}
}
