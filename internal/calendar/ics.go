package calendar

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/microcosm-cc/bluemonday"
	"github.com/teambition/rrule-go"

	"github.com/beekhof/calendar-notifier/internal/detect"
)

// maxOccurrences caps the instances expanded from a single RRULE.
const maxOccurrences = 5000

// ICSSource reads a published iCalendar feed and expands recurrences locally.
type ICSSource struct {
	client *http.Client
	url    string
	loc    *time.Location
	policy *bluemonday.Policy
}

// NewICSSource creates a source for the feed at url.
func NewICSSource(client *http.Client, url string, loc *time.Location) *ICSSource {
	return &ICSSource{client: client, url: url, loc: loc, policy: bluemonday.StrictPolicy()}
}

// Name returns the feed's X-WR-CALNAME.
func (s *ICSSource) Name(ctx context.Context) (string, error) {
	key := "ics:" + s.url
	if name, ok := displayNames.Get(key); ok {
		return name, nil
	}

	cal, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	name := s.calendarName(cal)
	if name == "" {
		return "", fmt.Errorf("feed %s has no X-WR-CALNAME", redactURL(s.url))
	}
	return name, nil
}

// Events returns the occurrences overlapping the window, sorted by start.
func (s *ICSSource) Events(ctx context.Context, timeMin, timeMax time.Time) ([]detect.Event, error) {
	cal, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.calendarName(cal)

	var masters []vevent
	overrides := make(map[string][]vevent)
	for _, comp := range cal.Events() {
		ev, err := s.parseVEvent(comp)
		if err != nil {
			slog.WarnContext(ctx, "skipping ics event", "url", redactURL(s.url), "error", err)
			continue
		}
		if ev.recurrenceID != nil {
			overrides[ev.uid] = append(overrides[ev.uid], ev)
			continue
		}
		masters = append(masters, ev)
	}

	var events []detect.Event
	for _, ev := range masters {
		if ev.rrule == "" {
			if overlaps(ev.start, ev.end, timeMin, timeMax) {
				events = append(events, ev.event(ev.uid, s.loc))
			}
			continue
		}
		expanded, err := s.expand(ev, overrides[ev.uid], timeMin, timeMax)
		if err != nil {
			slog.WarnContext(ctx, "failed to expand recurrence", "uid", ev.uid, "rrule", ev.rrule, "error", err)
			continue
		}
		events = append(events, expanded...)
	}

	slices.SortStableFunc(events, func(a, b detect.Event) int {
		return a.Start.Compare(b.Start)
	})
	return events, nil
}

func (s *ICSSource) fetch(ctx context.Context) (*ical.Calendar, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", redactURL(s.url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: %w", redactURL(s.url), &HTTPError{StatusCode: resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("empty ICS body from %s", redactURL(s.url))
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return cal, nil
}

func (s *ICSSource) calendarName(cal *ical.Calendar) string {
	for _, p := range cal.CalendarProperties {
		if p.IANAToken == "X-WR-CALNAME" {
			name := s.clean(p.Value)
			if name != "" {
				displayNames.Add("ics:"+s.url, name)
			}
			return name
		}
	}
	return ""
}

// vevent is a parsed VEVENT before recurrence expansion.
type vevent struct {
	uid          string
	summary      string
	location     string
	start        time.Time
	end          time.Time
	allDay       bool
	rrule        string
	exdates      []time.Time
	recurrenceID *time.Time
}

func (v vevent) event(id string, loc *time.Location) detect.Event {
	return detect.Event{
		ID:       id,
		Title:    v.summary,
		Location: v.location,
		Start:    v.start.In(loc),
		End:      v.end.In(loc),
		AllDay:   v.allDay,
	}
}

func (s *ICSSource) parseVEvent(ve *ical.VEvent) (vevent, error) {
	var out vevent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, fmt.Errorf("missing UID")
	}
	out.uid = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.summary = s.clean(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.location = s.clean(p.Value)
	}

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return out, fmt.Errorf("event %s has no DTSTART", out.uid)
	}
	// VALUE=DATE or no 'T' in the value -> all-day
	out.allDay = isDateValue(dtstart.Value, dtstart.ICalParameters)

	var err error
	if out.start, err = s.parseTime(dtstart.Value, dtstart.ICalParameters); err != nil {
		return out, fmt.Errorf("event %s: invalid DTSTART: %w", out.uid, err)
	}

	switch dtend := ve.GetProperty(ical.ComponentPropertyDtEnd); {
	case dtend != nil:
		if out.end, err = s.parseTime(dtend.Value, dtend.ICalParameters); err != nil {
			return out, fmt.Errorf("event %s: invalid DTEND: %w", out.uid, err)
		}
	case out.allDay:
		out.end = out.start.AddDate(0, 0, 1)
	default:
		out.end = out.start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rrule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := s.parseTime(part, p.ICalParameters); err == nil {
				out.exdates = append(out.exdates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		t, err := s.parseTime(p.Value, p.ICalParameters)
		if err != nil {
			return out, fmt.Errorf("event %s: invalid RECURRENCE-ID: %w", out.uid, err)
		}
		out.recurrenceID = &t
	}

	return out, nil
}

// expand returns the instances of a recurring event that overlap the window,
// with EXDATEs removed and RECURRENCE-ID overrides applied.
func (s *ICSSource) expand(ev vevent, overrides []vevent, timeMin, timeMax time.Time) ([]detect.Event, error) {
	r, err := rrule.StrToRRule(ev.rrule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RRULE: %w", err)
	}
	r.DTStart(ev.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.exdates {
		set.ExDate(ex.In(ev.start.Location()))
	}

	// Widen the lower bound so instances already in progress are kept.
	dur := ev.end.Sub(ev.start)
	starts := set.Between(timeMin.Add(-dur).In(ev.start.Location()), timeMax.In(ev.start.Location()), true)
	if len(starts) > maxOccurrences {
		starts = starts[:maxOccurrences]
	}

	used := make([]bool, len(overrides))
	var out []detect.Event
	for _, occStart := range starts {
		inst := ev
		inst.start = occStart
		inst.end = occStart.Add(dur)
		if ev.allDay {
			inst.end = occStart.AddDate(0, 0, int(dur.Hours()/24+0.5))
		}
		id := ev.uid + "_" + instanceKey(occStart, ev.allDay)

		for i, o := range overrides {
			if !used[i] && o.recurrenceID.Equal(occStart) {
				used[i] = true
				inst = o
				break
			}
		}
		if overlaps(inst.start, inst.end, timeMin, timeMax) {
			out = append(out, inst.event(id, s.loc))
		}
	}

	// Overrides moved into the window from an instance outside it.
	for i, o := range overrides {
		if used[i] || slices.ContainsFunc(ev.exdates, o.recurrenceID.Equal) {
			continue
		}
		if overlaps(o.start, o.end, timeMin, timeMax) {
			out = append(out, o.event(ev.uid+"_"+instanceKey(*o.recurrenceID, ev.allDay), s.loc))
		}
	}
	return out, nil
}

// parseTime reads an iCalendar DATE or DATE-TIME value. Dates and floating
// times are read in the display location; TZID and UTC values keep their
// own zone so recurrences follow that zone's DST rules.
func (s *ICSSource) parseTime(value string, params map[string][]string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if isDateValue(value, params) {
		return time.ParseInLocation("20060102", value, s.loc)
	}
	if strings.HasSuffix(value, "Z") {
		return time.Parse("20060102T150405Z", value)
	}

	loc := s.loc
	if tzids := params["TZID"]; len(tzids) > 0 {
		if tz, err := time.LoadLocation(strings.Trim(tzids[0], `"`)); err == nil {
			loc = tz
		}
	}
	return time.ParseInLocation("20060102T150405", value, loc)
}

func isDateValue(value string, params map[string][]string) bool {
	if vs := params["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(value, "T")
}

var textUnescaper = strings.NewReplacer(`\,`, ",", `\;`, ";", `\n`, "\n", `\N`, "\n", `\\`, `\`)

// clean unescapes iCalendar text and strips any HTML markup.
func (s *ICSSource) clean(v string) string {
	v = textUnescaper.Replace(v)
	v = html.UnescapeString(s.policy.Sanitize(v))
	return strings.TrimSpace(v)
}

func overlaps(start, end, timeMin, timeMax time.Time) bool {
	if !end.After(start) {
		return !start.Before(timeMin) && start.Before(timeMax)
	}
	return start.Before(timeMax) && end.After(timeMin)
}

// redactURL drops credentials and query strings, which often carry secret
// tokens for private feeds.
func redactURL(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	if scheme := strings.Index(raw, "://"); scheme >= 0 {
		if at := strings.LastIndex(raw, "@"); at > scheme {
			raw = raw[:scheme+3] + raw[at+1:]
		}
	}
	return raw
}
