package calendar

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/beekhof/calendar-notifier/internal/detect"
)

// CalDAVSource reads a CalDAV calendar collection such as iCloud or Nextcloud.
type CalDAVSource struct {
	httpClient  *http.Client
	calendarURL string
	username    string
	password    string
	loc         *time.Location
}

// NewCalDAVSource creates a source for the collection at calendarURL.
// For iCloud the password should be an app-specific password.
func NewCalDAVSource(httpClient *http.Client, calendarURL, username, password string, loc *time.Location) *CalDAVSource {
	return &CalDAVSource{
		httpClient:  httpClient,
		calendarURL: calendarURL,
		username:    username,
		password:    password,
		loc:         loc,
	}
}

// makeRequest makes an authenticated request against the collection.
func (c *CalDAVSource) makeRequest(ctx context.Context, method, depth string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.calendarURL, body)
	if err != nil {
		return nil, err
	}

	req.SetBasicAuth(c.username, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	}
	req.Header.Set("Depth", depth)

	return c.httpClient.Do(req)
}

const propfindDisplayName = `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:">
  <d:prop>
    <d:displayname/>
  </d:prop>
</d:propfind>`

// Name returns the collection's displayname.
func (c *CalDAVSource) Name(ctx context.Context) (string, error) {
	key := "caldav:" + c.calendarURL
	if name, ok := displayNames.Get(key); ok {
		return name, nil
	}

	resp, err := c.makeRequest(ctx, "PROPFIND", "0", strings.NewReader(propfindDisplayName))
	if err != nil {
		return "", fmt.Errorf("failed to get calendar properties: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get calendar properties: %w", &HTTPError{StatusCode: resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	ms, err := parseMultistatus(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse CalDAV response: %w", err)
	}

	for _, r := range ms.Responses {
		if name := r.displayName(); name != "" {
			displayNames.Add(key, name)
			return name, nil
		}
	}
	return "", fmt.Errorf("calendar %s has no displayname", c.calendarURL)
}

// Events retrieves events within the specified time window. The server
// expands recurring events into one VEVENT per instance.
func (c *CalDAVSource) Events(ctx context.Context, timeMin, timeMax time.Time) ([]detect.Event, error) {
	start := timeMin.UTC().Format("20060102T150405Z")
	end := timeMax.UTC().Format("20060102T150405Z")
	queryBody := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8" ?>
<C:calendar-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:prop>
    <D:getetag/>
    <C:calendar-data>
      <C:expand start="%s" end="%s"/>
    </C:calendar-data>
  </D:prop>
  <C:filter>
    <C:comp-filter name="VCALENDAR">
      <C:comp-filter name="VEVENT">
        <C:time-range start="%s" end="%s"/>
      </C:comp-filter>
    </C:comp-filter>
  </C:filter>
</C:calendar-query>`, start, end, start, end)

	resp, err := c.makeRequest(ctx, "REPORT", "1", strings.NewReader(queryBody))
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMultiStatus {
		return nil, fmt.Errorf("failed to query calendar: %w", &HTTPError{StatusCode: resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	ms, err := parseMultistatus(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CalDAV response: %w", err)
	}

	var events []detect.Event
	for _, r := range ms.Responses {
		data := r.calendarData()
		if data == "" {
			continue
		}
		cal, err := ical.NewDecoder(strings.NewReader(data)).Decode()
		if err != nil {
			slog.WarnContext(ctx, "failed to parse iCalendar data", "href", r.Href, "error", err)
			continue
		}
		for _, vevent := range cal.Events() {
			e, err := c.toEvent(vevent)
			if err != nil {
				slog.WarnContext(ctx, "failed to convert event", "href", r.Href, "error", err)
				continue
			}
			events = append(events, e)
		}
	}

	return events, nil
}

type multistatus struct {
	XMLName   xml.Name      `xml:"multistatus"`
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href      string        `xml:"href"`
	Propstats []davPropstat `xml:"propstat"`
}

type davPropstat struct {
	Prop struct {
		DisplayName  string `xml:"displayname"`
		CalendarData string `xml:"calendar-data"`
	} `xml:"prop"`
}

// displayName returns the first non-empty displayname.
func (r davResponse) displayName() string {
	for _, ps := range r.Propstats {
		if name := strings.TrimSpace(ps.Prop.DisplayName); name != "" {
			return name
		}
	}
	return ""
}

// calendarData returns the first non-empty calendar-data.
func (r davResponse) calendarData() string {
	for _, ps := range r.Propstats {
		if strings.TrimSpace(ps.Prop.CalendarData) != "" {
			return ps.Prop.CalendarData
		}
	}
	return ""
}

// parseMultistatus parses a WebDAV multistatus body.
func parseMultistatus(body []byte) (*multistatus, error) {
	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	return &ms, nil
}

// toEvent converts a VEVENT. Instances of a recurring event share a UID and
// are told apart by RECURRENCE-ID.
func (c *CalDAVSource) toEvent(vevent ical.Event) (detect.Event, error) {
	uid := vevent.Props.Get(ical.PropUID)
	if uid == nil || uid.Value == "" {
		return detect.Event{}, fmt.Errorf("VEVENT has no UID")
	}

	dtstart := vevent.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return detect.Event{}, fmt.Errorf("VEVENT %s has no DTSTART", uid.Value)
	}
	allDay := strings.EqualFold(dtstart.Params.Get("VALUE"), "DATE")

	start, err := vevent.DateTimeStart(c.loc)
	if err != nil {
		return detect.Event{}, fmt.Errorf("failed to parse DTSTART: %w", err)
	}
	end, err := vevent.DateTimeEnd(c.loc)
	if err != nil {
		return detect.Event{}, fmt.Errorf("failed to parse DTEND: %w", err)
	}
	if end.IsZero() || end.Before(start) {
		end = start
		if allDay {
			end = start.AddDate(0, 0, 1)
		}
	}

	e := detect.Event{
		ID:       uid.Value,
		Title:    propText(vevent.Component, ical.PropSummary),
		Location: propText(vevent.Component, ical.PropLocation),
		Start:    start.In(c.loc),
		End:      end.In(c.loc),
		AllDay:   allDay,
	}

	if rid := vevent.Props.Get(ical.PropRecurrenceID); rid != nil {
		ridTime, err := rid.DateTime(c.loc)
		if err != nil {
			return detect.Event{}, fmt.Errorf("failed to parse RECURRENCE-ID: %w", err)
		}
		e.ID += "_" + instanceKey(ridTime, strings.EqualFold(rid.Params.Get("VALUE"), "DATE"))
	}

	return e, nil
}

func propText(comp *ical.Component, name string) string {
	prop := comp.Props.Get(name)
	if prop == nil {
		return ""
	}
	text, err := prop.Text()
	if err != nil {
		return prop.Value
	}
	return text
}
