package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"syscall"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/beekhof/calendar-notifier/internal/auth"
	"github.com/beekhof/calendar-notifier/internal/config"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Check every calendar once and send the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := setup(ctx, opts)
			if err != nil {
				slog.ErrorContext(ctx, "setup failed", "error", err)
				return err
			}
			defer a.Close()

			_, runErr := a.watcher.Run(ctx)
			if err := errors.Join(a.setupErr, runErr); err != nil {
				slog.ErrorContext(ctx, "run completed with errors", "error", err)
				return err
			}
			return nil
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Check calendars on the configured schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := setup(ctx, opts)
			if err != nil {
				slog.ErrorContext(ctx, "setup failed", "error", err)
				return err
			}
			defer a.Close()
			if a.setupErr != nil {
				slog.WarnContext(ctx, "some calendars are not watched", "error", a.setupErr)
			}

			var g run.Group
			g.Add(func() error {
				return a.watcher.Schedule(ctx, a.cfg.Schedule, a.loc)
			}, func(error) {
				cancel()
			})
			g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

			err = g.Run()
			var sig run.SignalError
			if err == nil || errors.As(err, &sig) {
				slog.InfoContext(ctx, "shutting down")
				return nil
			}
			slog.ErrorContext(ctx, "watch failed", "error", err)
			return err
		},
	}
}

func newAuthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize Google Calendar and Sheets access and store the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if opts.configFile == "" {
				return fmt.Errorf("--config FILE is required, see --help")
			}

			cfg, err := config.LoadAuthConfig(ctx, opts.configFile, opts.flags())
			if err != nil {
				slog.ErrorContext(ctx, "failed to load config", "error", err)
				return err
			}
			clientID, clientSecret, err := config.LoadGoogleCredentials(cfg.GoogleCredentialsPath)
			if err != nil {
				slog.ErrorContext(ctx, "failed to load Google credentials", "error", err)
				return err
			}

			store := auth.NewFileTokenStore(cfg.TokenPath)
			if err := auth.Authorize(ctx, auth.OAuthConfig(clientID, clientSecret), store, cmd.OutOrStdout()); err != nil {
				slog.ErrorContext(ctx, "authorization failed", "error", err)
				return err
			}
			slog.InfoContext(ctx, "token saved", "path", cfg.TokenPath)
			return nil
		},
	}
}
