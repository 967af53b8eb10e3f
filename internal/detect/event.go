// Package detect reconciles a stored snapshot of calendar events against the
// live state of a calendar and describes what was created, modified or deleted.
package detect

import "time"

// NoLocation is stored and displayed when an event has no location.
const NoLocation = "なし"

// Kind tags a row as all-day or timed. The values are persisted verbatim.
type Kind string

const (
	KindAllDay Kind = "終日"
	KindTimed  Kind = "通常"
)

// KindOf returns the kind marker for an event.
func KindOf(allDay bool) Kind {
	if allDay {
		return KindAllDay
	}
	return KindTimed
}

// AllDay reports whether k marks an all-day row. Unknown markers are timed.
func (k Kind) AllDay() bool {
	return k == KindAllDay
}

// Event is a single occurrence as reported by a calendar provider.
// Start and End should already be in the display time zone.
type Event struct {
	ID       string
	Title    string
	Start    time.Time
	End      time.Time
	AllDay   bool
	Location string
}

// Header is the first row of every persisted snapshot.
var Header = []string{"イベントID", "タイトル", "開始時刻", "終了時刻", "場所", "種別"}

// Row is the normalized, persisted form of an event.
type Row struct {
	ID       string
	Title    string
	Start    string
	End      string
	Location string
	Kind     Kind
}

// Snapshot is the full set of rows saved after a pass.
type Snapshot []Row

// RowFromEvent normalizes e into the row stored in the next snapshot.
func RowFromEvent(e Event) Row {
	loc := e.Location
	if loc == "" {
		loc = NoLocation
	}
	return Row{
		ID:       e.ID,
		Title:    e.Title,
		Start:    Normalize(e.Start, e.AllDay),
		End:      Normalize(e.End, e.AllDay),
		Location: loc,
		Kind:     KindOf(e.AllDay),
	}
}
