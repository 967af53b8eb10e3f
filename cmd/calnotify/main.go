// Command calnotify watches calendars and sends a LINE message describing
// events that were created, changed or deleted since the previous run.
package main

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/beekhof/calendar-notifier/internal/logger"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile            string
	googleCredentialsPath string
	tokenPath             string
	calendar              string
	verbose               bool
	debug                 bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "calnotify",
		Short: "Notify about calendar changes over LINE",
		Long: `calnotify compares the events in each configured calendar with the
snapshot saved on the previous run and sends one message listing the
events that were created, changed or deleted.

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (a .env file in the working directory is loaded first)
    3. Config file (--config, JSON or YAML)
    4. Defaults`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			slog.SetDefault(logger.New(os.Stderr, "text", opts.verbose))
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("failed to load .env file", "error", err)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "Path to JSON or YAML config file (required)")
	pf.StringVar(&opts.googleCredentialsPath, "google-credentials-path", "", "Path to Google OAuth credentials JSON file (overrides config file and GOOGLE_CREDENTIALS_PATH env var)")
	pf.StringVar(&opts.tokenPath, "token-path", "", "Path to store the Google OAuth token (overrides config file and TOKEN_PATH env var)")
	pf.StringVar(&opts.calendar, "calendar", "", "Check only the named calendar (optional)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose output (show DEBUG logs)")
	pf.BoolVar(&opts.debug, "debug", false, "Log the report instead of sending it")

	root.AddCommand(newRunCmd(opts), newWatchCmd(opts), newAuthCmd(opts))
	return root
}
