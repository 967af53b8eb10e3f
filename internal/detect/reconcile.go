package detect

// Result is the outcome of reconciling one calendar.
type Result struct {
	Created  []string
	Modified []string
	Deleted  []string

	// Snapshot holds one row per live event, in live order, and replaces the
	// previous snapshot once the result has been handled.
	Snapshot Snapshot
}

// HasChanges reports whether any category is non-empty.
func (r Result) HasChanges() bool {
	return len(r.Created)+len(r.Modified)+len(r.Deleted) > 0
}

// lookup indexes previous rows by ID. A repeated ID overwrites the earlier
// row but keeps its original position, so leftovers come out in the order
// IDs were first seen.
type lookup struct {
	index   map[string]int
	rows    []Row
	present []bool
	left    int
}

func newLookup(prev Snapshot) *lookup {
	l := &lookup{index: make(map[string]int, len(prev))}
	for _, r := range prev {
		r = canonical(r)
		if i, ok := l.index[r.ID]; ok {
			l.rows[i] = r
			continue
		}
		l.index[r.ID] = len(l.rows)
		l.rows = append(l.rows, r)
		l.present = append(l.present, true)
		l.left++
	}
	return l
}

// take removes and returns the row for id.
func (l *lookup) take(id string) (Row, bool) {
	i, ok := l.index[id]
	if !ok || !l.present[i] {
		return Row{}, false
	}
	l.present[i] = false
	l.left--
	return l.rows[i], true
}

func (l *lookup) remaining() []Row {
	out := make([]Row, 0, l.left)
	for i, r := range l.rows {
		if l.present[i] {
			out = append(out, r)
		}
	}
	return out
}

// canonical applies the read-side defaults to a stored row.
func canonical(r Row) Row {
	allDay := r.Kind.AllDay()
	if r.Kind != KindAllDay {
		r.Kind = KindTimed
	}
	if r.Location == "" {
		r.Location = NoLocation
	}
	r.Start = Renormalize(r.Start, allDay)
	r.End = Renormalize(r.End, allDay)
	return r
}

// Reconcile compares the previous snapshot with the live events. Every live
// event yields a row in the new snapshot and is classified as created, or as
// modified when its title, time window or location differs from the stored
// row. Stored rows with no live counterpart are reported as deleted.
func Reconcile(prev Snapshot, live []Event) Result {
	l := newLookup(prev)
	var res Result
	if len(live) > 0 {
		res.Snapshot = make(Snapshot, 0, len(live))
	}

	for _, e := range live {
		cur := RowFromEvent(e)
		res.Snapshot = append(res.Snapshot, cur)

		old, ok := l.take(cur.ID)
		if !ok {
			res.Created = append(res.Created, renderCreated(cur))
			continue
		}

		var changes []string
		if old.Title != cur.Title {
			changes = append(changes, titleChange(old, cur))
		}
		if old.Start != cur.Start || old.End != cur.End {
			changes = append(changes, timeChange(old, cur))
		}
		if old.Location != cur.Location {
			changes = append(changes, locationChange(old, cur))
		}
		if len(changes) > 0 {
			res.Modified = append(res.Modified, renderModified(cur, changes))
		}
	}

	for _, old := range l.remaining() {
		res.Deleted = append(res.Deleted, renderDeleted(old))
	}
	return res
}
