package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"google.golang.org/api/option"

	"github.com/beekhof/calendar-notifier/internal/auth"
	"github.com/beekhof/calendar-notifier/internal/calendar"
	"github.com/beekhof/calendar-notifier/internal/config"
	"github.com/beekhof/calendar-notifier/internal/logger"
	"github.com/beekhof/calendar-notifier/internal/notify"
	"github.com/beekhof/calendar-notifier/internal/snapshot"
	"github.com/beekhof/calendar-notifier/internal/watch"
)

// app is everything a run needs, built from the configuration.
type app struct {
	cfg      *config.Config
	loc      *time.Location
	watcher  *watch.Watcher
	opener   *snapshot.Opener
	setupErr error // calendars that could not be opened
}

func (a *app) Close() {
	if err := a.opener.Close(); err != nil {
		slog.Warn("failed to close snapshot stores", "error", err)
	}
}

func (o *rootOptions) flags() config.Flags {
	return config.Flags{
		GoogleCredentialsPath: o.googleCredentialsPath,
		TokenPath:             o.tokenPath,
		Debug:                 o.debug,
	}
}

// setup loads the configuration and opens every calendar and store. A
// calendar that cannot be opened is logged, recorded in setupErr and left
// out; the others still run.
func setup(ctx context.Context, opts *rootOptions) (*app, error) {
	if opts.configFile == "" {
		return nil, fmt.Errorf("--config FILE is required, see --help")
	}

	cfg, err := config.LoadConfig(ctx, opts.configFile, opts.flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Select(opts.calendar); err != nil {
		return nil, err
	}
	slog.SetDefault(logger.New(os.Stderr, cfg.LogFormat, opts.verbose))

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var googleOpts []option.ClientOption
	if cfg.NeedsGoogle() {
		clientID, clientSecret, err := config.LoadGoogleCredentials(cfg.GoogleCredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load Google credentials: %w", err)
		}
		httpClient, err := auth.Client(ctx, auth.OAuthConfig(clientID, clientSecret), auth.NewFileTokenStore(cfg.TokenPath))
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate Google account: %w", err)
		}
		googleOpts = append(googleOpts, option.WithHTTPClient(httpClient))
	}

	a := &app{cfg: cfg, loc: loc, opener: snapshot.NewOpener(googleOpts...)}
	sourceOpts := calendar.Options{
		Location:   loc,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Google:     googleOpts,
	}

	var (
		targets []watch.Target
		errs    []error
	)
	for _, cal := range cfg.Calendars {
		calCtx := logger.Ctx(ctx, slog.String("calendar", cal.Label()))

		src, err := calendar.Open(calCtx, cal, sourceOpts)
		if err != nil {
			slog.ErrorContext(calCtx, "failed to open calendar", "type", cal.Type, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", cal.Label(), err))
			continue
		}
		store, err := a.opener.Open(calCtx, cal.Store)
		if err != nil {
			slog.ErrorContext(calCtx, "failed to open snapshot store", "store", cal.Store.Type, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", cal.Label(), err))
			continue
		}
		targets = append(targets, watch.Target{Name: cal.Name, Label: cal.Label(), Source: src, Store: store})
	}
	a.setupErr = errors.Join(errs...)

	if len(targets) == 0 {
		a.Close()
		return nil, fmt.Errorf("no calendar could be opened: %w", a.setupErr)
	}

	var sink notify.Sink
	if cfg.Debug {
		sink = notify.NewLogSink(slog.Default())
	} else {
		sink = notify.NewLineClient(cfg.Line.AccessToken, cfg.Line.APIURL)
	}

	a.watcher = watch.New(targets, sink, watch.Options{
		LookbackDays:  cfg.LookbackDays,
		LookaheadDays: cfg.LookaheadDays,
		Debug:         cfg.Debug,
		RecipientID:   cfg.Line.RecipientID,
		Concurrency:   cfg.Concurrency,
	})
	return a, nil
}
