package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// GoogleCredentials represents the structure of Google OAuth credentials JSON file.
type GoogleCredentials struct {
	Installed struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"installed"`
	Web struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"web"`
}

// LoadGoogleCredentials loads Google OAuth credentials from a JSON file.
func LoadGoogleCredentials(path string) (clientID, clientSecret string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds GoogleCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", "", fmt.Errorf("failed to parse credentials file: %w", err)
	}

	// Try "installed" first (for desktop apps), then "web"
	if creds.Installed.ClientID != "" {
		return creds.Installed.ClientID, creds.Installed.ClientSecret, nil
	}
	if creds.Web.ClientID != "" {
		return creds.Web.ClientID, creds.Web.ClientSecret, nil
	}

	return "", "", fmt.Errorf("no client_id found in credentials file (expected 'installed' or 'web' section)")
}

// Calendar source types.
const (
	SourceGoogle = "google"
	SourceCalDAV = "caldav"
	SourceICS    = "ics"
)

// Snapshot store types.
const (
	StoreFile     = "file"
	StoreSheet    = "sheet"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Defaults applied when a value is not configured anywhere.
const (
	DefaultLookaheadDays = 30
	DefaultSchedule      = "*/15 * * * *"
	DefaultLogFormat     = "text"
	DefaultTimezone      = "Local"
)

// ErrNoCalendars is returned when the configuration watches nothing.
var ErrNoCalendars = errors.New("no calendars configured")

// StoreConfig says where a calendar's snapshot is kept.
type StoreConfig struct {
	Type          string `json:"type" yaml:"type"`                                         // "file", "sheet", "sqlite" or "postgres"
	Path          string `json:"path,omitempty" yaml:"path,omitempty"`                     // CSV file for "file"
	SpreadsheetID string `json:"spreadsheet_id,omitempty" yaml:"spreadsheet_id,omitempty"` // For "sheet"
	Sheet         string `json:"sheet,omitempty" yaml:"sheet,omitempty"`                   // Tab name; first tab when empty
	DSN           string `json:"dsn,omitempty" yaml:"dsn,omitempty"`                       // sqlite file or postgres connection string
	Key           string `json:"key,omitempty" yaml:"key,omitempty"`                       // Row namespace in SQL stores
}

// CalendarConfig represents a single watched calendar.
type CalendarConfig struct {
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`               // Shown in notifications; provider name when empty
	Type       string `json:"type,omitempty" yaml:"type,omitempty"`               // "google", "caldav" or "ics"
	CalendarID string `json:"calendar_id,omitempty" yaml:"calendar_id,omitempty"` // Google calendar ID (default: "primary")

	// CalDAV and ICS specific fields
	URL      string `json:"url,omitempty" yaml:"url,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	Store StoreConfig `json:"store" yaml:"store"`
}

// Label identifies the calendar in logs and errors.
func (c CalendarConfig) Label() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.CalendarID != "":
		return c.CalendarID
	default:
		return c.URL
	}
}

// LineConfig holds the LINE Messaging API settings.
type LineConfig struct {
	AccessToken string `json:"access_token,omitempty" yaml:"access_token,omitempty"`
	APIURL      string `json:"api_url,omitempty" yaml:"api_url,omitempty"`
	RecipientID string `json:"recipient_id,omitempty" yaml:"recipient_id,omitempty"` // Push to one user instead of broadcasting
}

// Config holds the configuration for the calendar notifier.
type Config struct {
	GoogleCredentialsPath string           `json:"google_credentials_path,omitempty" yaml:"google_credentials_path,omitempty"`
	TokenPath             string           `json:"token_path,omitempty" yaml:"token_path,omitempty"`
	Timezone              string           `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	Debug                 bool             `json:"debug,omitempty" yaml:"debug,omitempty"`
	LogFormat             string           `json:"log_format,omitempty" yaml:"log_format,omitempty"` // "text" or "json"
	Line                  LineConfig       `json:"line" yaml:"line"`
	Calendars             []CalendarConfig `json:"calendars" yaml:"calendars"` // Watched calendars (required)

	// Detection window, in days relative to now
	LookbackDays  int `json:"lookback_days,omitempty" yaml:"lookback_days,omitempty"`   // default: 0
	LookaheadDays int `json:"lookahead_days,omitempty" yaml:"lookahead_days,omitempty"` // default: 30

	// Scheduling
	Schedule    string `json:"schedule,omitempty" yaml:"schedule,omitempty"`       // Cron spec used by "watch"
	Concurrency int    `json:"concurrency,omitempty" yaml:"concurrency,omitempty"` // Calendars processed at once (default: 1)
}

// Flags carries command-line overrides. Zero values mean "not set".
type Flags struct {
	GoogleCredentialsPath string
	TokenPath             string
	Debug                 bool
}

// envOverrides lists the environment variables that override the file.
type envOverrides struct {
	GoogleCredentialsPath string `env:"GOOGLE_CREDENTIALS_PATH"`
	TokenPath             string `env:"TOKEN_PATH"`
	LineAccessToken       string `env:"LINE_ACCESS_TOKEN"`
	LineRecipientID       string `env:"LINE_RECIPIENT_ID"`
	LineAPIURL            string `env:"LINE_API_URL"`
	Timezone              string `env:"TIMEZONE"`
	LogFormat             string `env:"LOG_FORMAT"`
	Debug                 *bool  `env:"CALNOTIFY_DEBUG, noinit"`
	LookaheadDays         *int   `env:"LOOKAHEAD_DAYS, noinit"`
	LookbackDays          *int   `env:"LOOKBACK_DAYS, noinit"`
}

// LoadConfigFromFile loads configuration from a JSON or YAML file, chosen by
// the file extension.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Returns an error if any required value is missing.
func LoadConfig(ctx context.Context, configFile string, flags Flags) (*Config, error) {
	config, err := load(ctx, configFile, flags)
	if err != nil {
		return nil, err
	}

	// Step 4: Apply defaults and validate required fields
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadAuthConfig resolves only the Google OAuth settings, for commands that
// authorize without watching anything.
func LoadAuthConfig(ctx context.Context, configFile string, flags Flags) (*Config, error) {
	config, err := load(ctx, configFile, flags)
	if err != nil {
		return nil, err
	}

	if config.GoogleCredentialsPath == "" {
		return nil, fmt.Errorf("google_credentials_path must be provided via --google-credentials-path flag, GOOGLE_CREDENTIALS_PATH environment variable, or config file")
	}
	if config.TokenPath == "" {
		return nil, fmt.Errorf("token_path must be provided via --token-path flag, TOKEN_PATH environment variable, or config file")
	}

	return config, nil
}

func load(ctx context.Context, configFile string, flags Flags) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	var env envOverrides
	if err := envconfig.Process(ctx, &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	config.applyEnv(env)

	// Step 3: Override with command-line flags (highest priority)
	if flags.GoogleCredentialsPath != "" {
		config.GoogleCredentialsPath = flags.GoogleCredentialsPath
	}
	if flags.TokenPath != "" {
		config.TokenPath = flags.TokenPath
	}
	if flags.Debug {
		config.Debug = true
	}

	return &config, nil
}

func (c *Config) applyEnv(env envOverrides) {
	setString(&c.GoogleCredentialsPath, env.GoogleCredentialsPath)
	setString(&c.TokenPath, env.TokenPath)
	setString(&c.Line.AccessToken, env.LineAccessToken)
	setString(&c.Line.RecipientID, env.LineRecipientID)
	setString(&c.Line.APIURL, env.LineAPIURL)
	setString(&c.Timezone, env.Timezone)
	setString(&c.LogFormat, env.LogFormat)

	if env.Debug != nil {
		c.Debug = *env.Debug
	}
	if env.LookaheadDays != nil {
		c.LookaheadDays = *env.LookaheadDays
	}
	if env.LookbackDays != nil {
		c.LookbackDays = *env.LookbackDays
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate fills in defaults and checks that every required value is present.
func (c *Config) Validate() error {
	if len(c.Calendars) == 0 {
		return fmt.Errorf("%w: calendars array must be provided in config file. At least one calendar is required", ErrNoCalendars)
	}

	stores := make(map[string]int, len(c.Calendars))
	for i := range c.Calendars {
		cal := &c.Calendars[i]
		if err := cal.validate(i); err != nil {
			return err
		}
		id := cal.Store.identity()
		if j, ok := stores[id]; ok {
			return fmt.Errorf("calendars[%d] (name: %s): store is already used by calendars[%d] (name: %s); each calendar needs its own snapshot",
				i, cal.Name, j, c.Calendars[j].Name)
		}
		stores[id] = i
	}

	if c.NeedsGoogle() {
		if c.GoogleCredentialsPath == "" {
			return fmt.Errorf("google_credentials_path must be provided via --google-credentials-path flag, GOOGLE_CREDENTIALS_PATH environment variable, or config file")
		}
		if c.TokenPath == "" {
			return fmt.Errorf("token_path must be provided via --token-path flag, TOKEN_PATH environment variable, or config file")
		}
	}

	if !c.Debug && c.Line.AccessToken == "" {
		return fmt.Errorf("line.access_token must be provided via LINE_ACCESS_TOKEN environment variable or config file (or run with --debug)")
	}

	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	if c.LookaheadDays <= 0 {
		c.LookaheadDays = DefaultLookaheadDays
	}
	if c.LookbackDays < 0 {
		return fmt.Errorf("lookback_days must not be negative, got %d", c.LookbackDays)
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}

	if c.Schedule == "" {
		c.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
	}

	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be 'text' or 'json', got '%s'", c.LogFormat)
	}

	return nil
}

func (cal *CalendarConfig) validate(i int) error {
	if cal.Type == "" {
		cal.Type = SourceGoogle
	}

	switch cal.Type {
	case SourceGoogle:
		if cal.CalendarID == "" {
			cal.CalendarID = "primary"
		}
	case SourceCalDAV:
		if cal.URL == "" {
			return fmt.Errorf("calendars[%d] (name: %s): url must be provided for CalDAV calendar", i, cal.Name)
		}
		if cal.Username == "" {
			return fmt.Errorf("calendars[%d] (name: %s): username must be provided for CalDAV calendar", i, cal.Name)
		}
		if cal.Password == "" {
			return fmt.Errorf("calendars[%d] (name: %s): password must be provided for CalDAV calendar", i, cal.Name)
		}
	case SourceICS:
		if cal.URL == "" {
			return fmt.Errorf("calendars[%d] (name: %s): url must be provided for ICS calendar", i, cal.Name)
		}
	default:
		return fmt.Errorf("calendars[%d].type must be 'google', 'caldav' or 'ics', got '%s'", i, cal.Type)
	}

	store := &cal.Store
	if store.Type == "" {
		store.Type = StoreFile
	}
	switch store.Type {
	case StoreFile:
		if store.Path == "" {
			return fmt.Errorf("calendars[%d] (name: %s): store.path must be provided for file store", i, cal.Name)
		}
	case StoreSheet:
		if store.SpreadsheetID == "" {
			return fmt.Errorf("calendars[%d] (name: %s): store.spreadsheet_id must be provided for sheet store", i, cal.Name)
		}
	case StoreSQLite, StorePostgres:
		if store.DSN == "" {
			return fmt.Errorf("calendars[%d] (name: %s): store.dsn must be provided for %s store", i, cal.Name, store.Type)
		}
		if store.Key == "" {
			store.Key = cal.Label()
		}
	default:
		return fmt.Errorf("calendars[%d].store.type must be 'file', 'sheet', 'sqlite' or 'postgres', got '%s'", i, store.Type)
	}

	return nil
}

// identity names the snapshot location, so that two calendars writing the
// same place can be told apart. Call after validate has filled defaults.
func (s StoreConfig) identity() string {
	switch s.Type {
	case StoreFile:
		return s.Type + ":" + filepath.Clean(s.Path)
	case StoreSheet:
		return s.Type + ":" + s.SpreadsheetID + "!" + s.Sheet
	default:
		return s.Type + ":" + s.DSN + "#" + s.Key
	}
}

// NeedsGoogle reports whether any calendar or store talks to Google APIs.
func (c *Config) NeedsGoogle() bool {
	for _, cal := range c.Calendars {
		if cal.Type == SourceGoogle || cal.Type == "" || cal.Store.Type == StoreSheet {
			return true
		}
	}
	return false
}

// Location returns the display time zone.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Select restricts the configuration to the calendar with the given name.
// An empty name keeps every calendar.
func (c *Config) Select(name string) error {
	if name == "" {
		return nil
	}
	for _, cal := range c.Calendars {
		if cal.Name == name {
			c.Calendars = []CalendarConfig{cal}
			return nil
		}
	}
	return fmt.Errorf("calendar %q not found in configuration", name)
}
