// Package calendar reads live events from calendar providers.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/api/option"

	"github.com/beekhof/calendar-notifier/internal/config"
	"github.com/beekhof/calendar-notifier/internal/detect"
)

// Source is a calendar that can be read for a time window.
type Source interface {
	// Name returns the provider's display name for the calendar.
	Name(ctx context.Context) (string, error)
	// Events returns the occurrences overlapping [timeMin, timeMax), in
	// provider order, with times in the display location.
	Events(ctx context.Context, timeMin, timeMax time.Time) ([]detect.Event, error)
}

// ErrUnknownSource is returned for an unsupported calendar type.
var ErrUnknownSource = errors.New("unknown calendar source")

// displayNames caches provider names across scheduled runs.
var displayNames = newNameCache(256)

func newNameCache(size int) *lru.Cache[string, string] {
	c, err := lru.New[string, string](size)
	if err != nil {
		panic(err)
	}
	return c
}

// Window returns the detection window around now.
func Window(now time.Time, lookbackDays, lookaheadDays int) (timeMin, timeMax time.Time) {
	day := 24 * time.Hour
	return now.Add(-time.Duration(lookbackDays) * day), now.Add(time.Duration(lookaheadDays) * day)
}

// Options carries what sources need beyond their own configuration.
type Options struct {
	Location   *time.Location
	HTTPClient *http.Client          // CalDAV and ICS requests
	Google     []option.ClientOption // Google Calendar API client
}

// Open returns the source described by cfg.
func Open(ctx context.Context, cfg config.CalendarConfig, opts Options) (Source, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	switch cfg.Type {
	case config.SourceGoogle, "":
		return NewGoogleSource(ctx, cfg.CalendarID, loc, opts.Google...)
	case config.SourceCalDAV:
		return NewCalDAVSource(httpClient, cfg.URL, cfg.Username, cfg.Password, loc), nil
	case config.SourceICS:
		return NewICSSource(httpClient, cfg.URL, loc), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Type)
	}
}

// instanceKey identifies one occurrence of a recurring event.
func instanceKey(start time.Time, allDay bool) string {
	if allDay {
		return start.Format("20060102")
	}
	return start.UTC().Format("20060102T150405Z")
}
