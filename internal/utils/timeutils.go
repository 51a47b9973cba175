package utils

import (
	"fmt"
	"time"
)

// TimestampLayout is ISO-8601 with seconds precision and a numeric offset.
const TimestampLayout = "2006-01-02T15:04:05-07:00"

// FormatTimestamp renders t in local time using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// ParseTimestamp parses a value written by FormatTimestamp (any RFC3339 value is accepted).
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}
