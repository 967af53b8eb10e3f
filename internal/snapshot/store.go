// Package snapshot persists the last seen state of each watched calendar.
package snapshot

import (
	"context"
	"strings"

	"github.com/beekhof/calendar-notifier/internal/detect"
)

// Store holds one calendar's snapshot. Load returns an empty snapshot when
// nothing has been saved yet; Save replaces the stored snapshot entirely.
type Store interface {
	Load(ctx context.Context) (detect.Snapshot, error)
	Save(ctx context.Context, snap detect.Snapshot) error
}

const columns = 6

// DecodeRows reads tabular records as written by EncodeRows. The first record
// is the header and is skipped. Blank records are ignored and short records
// are padded, so hand-edited tables still load.
func DecodeRows(records [][]string) detect.Snapshot {
	if len(records) <= 1 {
		return detect.Snapshot{}
	}
	snap := make(detect.Snapshot, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		cells := make([]string, columns)
		copy(cells, rec)
		snap = append(snap, detect.Row{
			ID:       strings.TrimSpace(cells[0]),
			Title:    cells[1],
			Start:    cells[2],
			End:      cells[3],
			Location: cells[4],
			Kind:     detect.Kind(strings.TrimSpace(cells[5])),
		})
	}
	return snap
}

// EncodeRows returns the header followed by one record per row.
func EncodeRows(snap detect.Snapshot) [][]string {
	records := make([][]string, 0, len(snap)+1)
	records = append(records, append([]string(nil), detect.Header...))
	for _, r := range snap {
		records = append(records, []string{r.ID, r.Title, r.Start, r.End, r.Location, string(r.Kind)})
	}
	return records
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
