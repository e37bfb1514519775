package timeparser

import (
	"fmt"
	"strconv"
	"time"
)

// ParseQueryTimestamp parses a timestamp from an API query parameter. It
// accepts RFC3339, unix seconds, and a couple of plain date formats which
// are interpreted in the given location.
func ParseQueryTimestamp(value string, loc *time.Location) (time.Time, error) {
	if unix, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(unix, 0).In(loc), nil
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}

	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.ParseInLocation(format, value, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", value, lastErr)
}
