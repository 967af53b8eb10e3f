package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule runs once immediately and then on every activation of the cron
// spec until ctx is done. A run still in progress when the next activation
// fires causes that activation to be skipped.
func (w *Watcher) Schedule(ctx context.Context, spec string, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)

	job := func() {
		if _, err := w.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "run finished with errors", "error", err)
		}
	}
	if _, err := c.AddFunc(spec, job); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	job()
	c.Start()
	slog.InfoContext(ctx, "scheduler started", "schedule", spec, "timezone", loc.String())

	<-ctx.Done()
	<-c.Stop().Done()
	slog.InfoContext(ctx, "scheduler stopped")
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
