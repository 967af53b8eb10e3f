package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/beekhof/calendar-notifier/internal/detect"
)

// GoogleSource reads a Google Calendar.
type GoogleSource struct {
	service    *gcal.Service
	calendarID string
	loc        *time.Location
}

// NewGoogleSource creates a source for calendarID. opts normally carry the
// authenticated HTTP client.
func NewGoogleSource(ctx context.Context, calendarID string, loc *time.Location, opts ...option.ClientOption) (*GoogleSource, error) {
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &GoogleSource{service: service, calendarID: calendarID, loc: loc}, nil
}

// Name returns the calendar's summary.
func (s *GoogleSource) Name(ctx context.Context) (string, error) {
	key := "google:" + s.calendarID
	if name, ok := displayNames.Get(key); ok {
		return name, nil
	}

	cal, err := s.service.Calendars.Get(s.calendarID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("Google: failed to get calendar %s: %w", s.calendarID, err)
	}
	displayNames.Add(key, cal.Summary)
	return cal.Summary, nil
}

// Events retrieves events within the specified time window.
// Important: Sets SingleEvents = true to expand recurring events.
func (s *GoogleSource) Events(ctx context.Context, timeMin, timeMax time.Time) ([]detect.Event, error) {
	var events []detect.Event

	call := s.service.Events.List(s.calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true). // Expand recurring events
		OrderBy("startTime")

	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" {
				continue
			}
			e, err := s.toEvent(item)
			if err != nil {
				slog.WarnContext(ctx, "skipping event", "event_id", item.Id, "error", err)
				continue
			}
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	return events, nil
}

func (s *GoogleSource) toEvent(item *gcal.Event) (detect.Event, error) {
	if item.Start == nil || item.End == nil {
		return detect.Event{}, fmt.Errorf("event has no start or end")
	}

	e := detect.Event{
		ID:       item.Id,
		Title:    item.Summary,
		Location: item.Location,
		AllDay:   item.Start.Date != "",
	}

	var err error
	if e.Start, err = s.parse(item.Start); err != nil {
		return detect.Event{}, fmt.Errorf("failed to parse event start time: %w", err)
	}
	if e.End, err = s.parse(item.End); err != nil {
		return detect.Event{}, fmt.Errorf("failed to parse event end time: %w", err)
	}
	return e, nil
}

// parse reads a date (all-day, in the display location) or an RFC 3339
// timestamp converted to the display location.
func (s *GoogleSource) parse(dt *gcal.EventDateTime) (time.Time, error) {
	if dt.Date != "" {
		return time.ParseInLocation("2006-01-02", dt.Date, s.loc)
	}
	t, err := time.Parse(time.RFC3339, dt.DateTime)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(s.loc), nil
}
