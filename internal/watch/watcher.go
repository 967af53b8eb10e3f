// Package watch runs change detection across the configured calendars and
// delivers the combined report.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/beekhof/calendar-notifier/internal/calendar"
	"github.com/beekhof/calendar-notifier/internal/detect"
	"github.com/beekhof/calendar-notifier/internal/logger"
	"github.com/beekhof/calendar-notifier/internal/notify"
	"github.com/beekhof/calendar-notifier/internal/report"
	"github.com/beekhof/calendar-notifier/internal/snapshot"
)

const (
	defaultFetchAttempts = 3
	defaultFetchBackoff  = time.Second
)

// Target is one calendar together with the store holding its snapshot.
type Target struct {
	// Name is the configured display name. When empty the provider's
	// name is used in the report.
	Name string
	// Label identifies the calendar in logs and errors.
	Label  string
	Source calendar.Source
	Store  snapshot.Store
}

func (t Target) label() string {
	if t.Label != "" {
		return t.Label
	}
	return t.Name
}

// Options tunes a Watcher. Zero values select the defaults.
type Options struct {
	LookbackDays  int
	LookaheadDays int

	// Debug logs the report instead of requiring a non-empty message.
	Debug bool
	// RecipientID pushes to one LINE user instead of broadcasting.
	RecipientID string

	Concurrency   int
	FetchAttempts int
	FetchBackoff  time.Duration

	Now func() time.Time
}

// CalendarOutcome is what a pass produced for one calendar.
type CalendarOutcome struct {
	Name   string
	Result detect.Result
	Err    error
}

// Outcome is the result of one run over every target.
type Outcome struct {
	Message   string
	Calendars []CalendarOutcome
}

// Watcher checks each target for changes and reports them to a sink.
type Watcher struct {
	targets []Target
	sink    notify.Sink
	opts    Options
}

// New creates a Watcher. Targets are reported in the order given.
func New(targets []Target, sink notify.Sink, opts Options) *Watcher {
	if opts.LookaheadDays <= 0 {
		opts.LookaheadDays = 30
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.FetchAttempts <= 0 {
		opts.FetchAttempts = defaultFetchAttempts
	}
	if opts.FetchBackoff <= 0 {
		opts.FetchBackoff = defaultFetchBackoff
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Watcher{targets: targets, sink: sink, opts: opts}
}

// Run performs one pass over every target. A failing calendar is logged and
// recorded in the outcome without affecting the others; its snapshot is left
// as it was so the changes are reported on a later run. The returned error
// joins every per-calendar failure.
func (w *Watcher) Run(ctx context.Context) (Outcome, error) {
	ctx = logger.Ctx(ctx, slog.String("run_id", uuid.NewString()))
	slog.InfoContext(ctx, "Starting change detection...", "calendars", len(w.targets))

	timeMin, timeMax := calendar.Window(w.opts.Now(), w.opts.LookbackDays, w.opts.LookaheadDays)

	// Results are indexed by target so the report follows configuration
	// order regardless of which pass finishes first.
	outcomes := make([]CalendarOutcome, len(w.targets))
	var g errgroup.Group
	g.SetLimit(w.opts.Concurrency)
	for i, t := range w.targets {
		g.Go(func() error {
			outcomes[i] = w.check(ctx, t, timeMin, timeMax)
			return nil
		})
	}
	_ = g.Wait()

	var (
		sections []report.Section
		errs     []error
	)
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Name, o.Err))
			continue
		}
		sections = append(sections, report.Section{Name: o.Name, Body: report.Format(o.Result)})
	}

	out := Outcome{Message: report.Combine(sections), Calendars: outcomes}
	w.deliver(ctx, out.Message)

	slog.InfoContext(ctx, "Change detection complete.", "failed", len(errs))
	return out, errors.Join(errs...)
}

// check runs the fetch, load, reconcile and save steps for one target.
func (w *Watcher) check(ctx context.Context, t Target, timeMin, timeMax time.Time) CalendarOutcome {
	ctx = logger.Ctx(ctx, slog.String("calendar", t.label()))
	out := CalendarOutcome{Name: w.displayName(ctx, t)}

	events, err := w.fetch(ctx, t.Source, timeMin, timeMax)
	if err != nil {
		out.Err = fmt.Errorf("failed to fetch events: %w", err)
		slog.ErrorContext(ctx, "calendar check failed", "error", out.Err)
		return out
	}

	prev, err := t.Store.Load(ctx)
	if err != nil {
		out.Err = fmt.Errorf("failed to load snapshot: %w", err)
		slog.ErrorContext(ctx, "calendar check failed", "error", out.Err)
		return out
	}

	result := detect.Reconcile(prev, events)

	if err := t.Store.Save(ctx, result.Snapshot); err != nil {
		out.Err = fmt.Errorf("failed to save snapshot: %w", err)
		slog.ErrorContext(ctx, "calendar check failed", "error", out.Err)
		return out
	}

	slog.InfoContext(ctx, "calendar checked",
		"events", len(events),
		"created", len(result.Created),
		"modified", len(result.Modified),
		"deleted", len(result.Deleted))
	out.Result = result
	return out
}

func (w *Watcher) displayName(ctx context.Context, t Target) string {
	if t.Name != "" {
		return t.Name
	}
	name, err := t.Source.Name(ctx)
	if err != nil || name == "" {
		slog.WarnContext(ctx, "failed to get calendar name from provider", "error", err)
		return t.label()
	}
	return name
}

// fetch reads the window from src, retrying transient failures with a
// Fibonacci backoff. Permanent errors such as a 401 or 404 fail at once.
func (w *Watcher) fetch(ctx context.Context, src calendar.Source, timeMin, timeMax time.Time) ([]detect.Event, error) {
	backoff := retry.WithMaxRetries(uint64(w.opts.FetchAttempts-1), retry.NewFibonacci(w.opts.FetchBackoff))

	var (
		events  []detect.Event
		attempt int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		evs, err := src.Events(ctx, timeMin, timeMax)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			if !calendar.Temporary(err) {
				return err
			}
			slog.WarnContext(ctx, "failed to fetch events", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		events = evs
		return nil
	})
	return events, err
}

func (w *Watcher) deliver(ctx context.Context, msg string) {
	if !w.opts.Debug {
		if strings.TrimSpace(msg) == "" {
			slog.InfoContext(ctx, "no changes detected")
			return
		}
		slog.InfoContext(ctx, "sending change report", "message", msg)
	}

	if w.opts.RecipientID != "" {
		w.sink.SendToOne(ctx, msg, w.opts.RecipientID)
		return
	}
	w.sink.Broadcast(ctx, msg)
}
