package reminder

import (
	"fmt"
	"strings"
	"time"
)

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime reads an ISO-8601 timestamp. A trailing Z and numeric offsets are
// honored; values without a zone are taken as UTC. The result is in UTC.
func ParseTime(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTime)
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999Z07:00"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, value)
}

// resolveNow returns the override when set and the clock otherwise.
func resolveNow(override *string, clock func() time.Time) (time.Time, error) {
	if override == nil || strings.TrimSpace(*override) == "" {
		return clock().UTC(), nil
	}
	return ParseTime(*override)
}
