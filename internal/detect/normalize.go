package detect

import (
	"strings"
	"time"
)

const (
	dateLayout     = "2006/01/02"
	dateTimeLayout = "2006/01/02 15:04"
)

// storedLayouts are the formats accepted when reading a persisted cell.
// Spreadsheet round-trips and older snapshots may carry any of them.
var storedLayouts = []string{
	dateTimeLayout,
	dateLayout,
	"2006/01/02 15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02",
}

// Normalize renders t as the canonical comparison string. All-day values keep
// only the calendar date so that differing times of day never compare unequal.
func Normalize(t time.Time, allDay bool) string {
	if allDay {
		return t.Format(dateLayout)
	}
	return t.Format(dateTimeLayout)
}

// Renormalize re-derives the canonical string from a persisted cell using the
// row's kind. Empty input stays empty; text that matches no known layout is
// returned trimmed so the row still round-trips.
func Renormalize(stored string, allDay bool) string {
	s := strings.TrimSpace(stored)
	if s == "" {
		return ""
	}
	for _, layout := range storedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Normalize(t, allDay)
		}
	}
	return s
}
