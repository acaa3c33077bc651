// Package timezone provides timezone utilities for the Cue backend.
//
// All date computation threads an explicit *time.Location; there is no
// ambient or global time context.
package timezone

import (
	"fmt"
	"time"
)

// ParseTimezone parses an IANA timezone identifier (e.g., "America/New_York").
// If the timezone is invalid, returns UTC and an error.
func ParseTimezone(tz string) (*time.Location, error) {
	if tz == "" || tz == "UTC" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	return loc, nil
}

// IsValidTimezone checks if a timezone identifier is valid.
func IsValidTimezone(tz string) bool {
	if tz == "" {
		return false
	}
	if tz == "UTC" {
		return true
	}

	_, err := time.LoadLocation(tz)
	return err == nil
}

// dueAtLayouts are the accepted layouts for due timestamps supplied by the
// planner. Offsetless layouts are interpreted in the caller's location.
var dueAtLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDueAt parses an ISO-8601 due timestamp. Values carrying an offset are
// honored as-is; offsetless values are attached to loc.
func ParseDueAt(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range dueAtLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unparseable due timestamp %q", value)
}

// FormatDueAt formats a due timestamp for user-facing reply text, e.g.
// "Feb 19, 12:00 PM".
func FormatDueAt(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Jan 02, 03:04 PM")
}
