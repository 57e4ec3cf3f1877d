package domain

import (
	"strings"
	"time"
)

// DateLayout is the calendar-date format used by date_added and live_date.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"01/02/2006",
}

// IsDateSentinel reports whether s is one of the placeholder live_date values
// (or empty) rather than a calendar date.
func IsDateSentinel(s string) bool {
	v := strings.TrimSpace(s)
	return v == "" || strings.EqualFold(v, LiveDateOnDemand) || strings.EqualFold(v, LiveDateUnknown)
}

// ParseDate parses a concrete date. Sentinels and unrecognised strings report false.
// Dates without a zone are read as UTC.
func ParseDate(s string) (time.Time, bool) {
	if IsDateSentinel(s) {
		return time.Time{}, false
	}
	v := strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Today formats now as a calendar date.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}
