package rules

import (
	"strconv"
	"time"
)

// ParseDuration parses "N+unit" with unit ∈ {s,m,h,d} (spec §4.2.4). A
// malformed string yields 0, which makes the rule fire immediately on
// its first PENDING tick — a documented degenerate, not an error.
func ParseDuration(s string) time.Duration {
	if len(s) < 2 {
		return 0
	}
	unit := s[len(s)-1]
	numPart := s[:len(s)-1]
	n, err := strconv.Atoi(numPart)
	if err != nil || n < 0 {
		return 0
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
		return 0
	}
}
