// Package config loads the immutable daemon configuration from the
// environment. A Config is built once at startup, validated before any
// I/O happens, and passed explicitly to every component.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/adhocore/gronx"

	"github.com/timeboxd/timeboxd/internal/plan"
)

// Environment variable names understood by the daemon.
const (
	EnvNotionToken      = "NOTION_TOKEN"
	EnvNotionDatabaseID = "NOTION_DATABASE_ID"
	EnvCalendarID       = "GOOGLE_CALENDAR_ID"
	EnvTimezone         = "TIMEZONE"
	EnvWorkStart        = "WORK_START"
	EnvWorkEnd          = "WORK_END"
	EnvPollIntervalSec  = "POLL_INTERVAL_SEC"
	EnvPollCron         = "POLL_CRON"
	EnvDefaultBlockMin  = "DEFAULT_BLOCK_MIN"
	EnvGeminiAPIKey     = "GEMINI_API_KEY"
	EnvGeminiModel      = "GEMINI_MODEL"
	EnvOAuthClientFile  = "GOOGLE_OAUTH_CLIENT_FILE"
	EnvOAuthClientB64   = "GOOGLE_OAUTH_CLIENT_B64"
	EnvTokenFile        = "GOOGLE_TOKEN_FILE"
	EnvTokenB64         = "GOOGLE_TOKEN_B64"
	EnvHTTPAddr         = "TIMEBOXD_HTTP_ADDR"
	EnvRPCSecret        = "TIMEBOXD_RPC_SECRET"
	EnvDBPath           = "TIMEBOXD_DB_PATH"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultCalendarID   = "primary"
	DefaultTimezone     = "America/Los_Angeles"
	DefaultWorkStart    = "09:00"
	DefaultWorkEnd      = "18:00"
	DefaultPollInterval = 90 * time.Second
	DefaultGeminiModel  = "gemini-1.5-pro"
	DefaultHTTPAddr     = "127.0.0.1:4242"
	DefaultDBPath       = "timeboxd.db"
)

// Config is the immutable runtime configuration.
type Config struct {
	NotionToken      string
	NotionDatabaseID string
	CalendarID       string

	TimezoneName string
	Location     *time.Location

	WorkStart plan.ClockTime
	WorkEnd   plan.ClockTime

	// PollInterval is the cadence of automatic runs. PollCron, when set,
	// replaces the fixed interval with a 5-field cron expression.
	PollInterval time.Duration
	PollCron     string

	// DefaultBlockMinutes is the estimator's fallback session length.
	DefaultBlockMinutes int

	// GeminiAPIKey is optional; empty disables the AI suggester.
	GeminiAPIKey string
	GeminiModel  string

	// OAuth material for the calendar client. Either file paths or raw
	// JSON decoded from base64 environment variables.
	OAuthClientFile string
	OAuthClientJSON []byte
	TokenFile       string
	TokenJSON       []byte

	HTTPAddr  string
	RPCSecret string
	DBPath    string
}

// Load builds a Config from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		NotionToken:      os.Getenv(EnvNotionToken),
		NotionDatabaseID: os.Getenv(EnvNotionDatabaseID),
		CalendarID:       getenv(EnvCalendarID, DefaultCalendarID),
		TimezoneName:     getenv(EnvTimezone, DefaultTimezone),
		PollCron:         os.Getenv(EnvPollCron),
		GeminiAPIKey:     os.Getenv(EnvGeminiAPIKey),
		GeminiModel:      getenv(EnvGeminiModel, DefaultGeminiModel),
		OAuthClientFile:  os.Getenv(EnvOAuthClientFile),
		TokenFile:        os.Getenv(EnvTokenFile),
		HTTPAddr:         getenv(EnvHTTPAddr, DefaultHTTPAddr),
		RPCSecret:        os.Getenv(EnvRPCSecret),
		DBPath:           getenv(EnvDBPath, DefaultDBPath),
	}

	if cfg.NotionToken == "" {
		return nil, missingErr(EnvNotionToken)
	}
	if cfg.NotionDatabaseID == "" {
		return nil, missingErr(EnvNotionDatabaseID)
	}

	loc, err := time.LoadLocation(cfg.TimezoneName)
	if err != nil {
		return nil, fmt.Errorf("config: invalid %s %q: %w", EnvTimezone, cfg.TimezoneName, err)
	}
	cfg.Location = loc

	if cfg.WorkStart, err = plan.ParseClock(getenv(EnvWorkStart, DefaultWorkStart)); err != nil {
		return nil, fmt.Errorf("config: %s: %w", EnvWorkStart, err)
	}
	if cfg.WorkEnd, err = plan.ParseClock(getenv(EnvWorkEnd, DefaultWorkEnd)); err != nil {
		return nil, fmt.Errorf("config: %s: %w", EnvWorkEnd, err)
	}

	cfg.PollInterval = DefaultPollInterval
	if raw := os.Getenv(EnvPollIntervalSec); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("config: invalid %s %q", EnvPollIntervalSec, raw)
		}
		cfg.PollInterval = time.Duration(secs) * time.Second
	}
	if cfg.PollCron != "" && !gronx.IsValid(cfg.PollCron) {
		return nil, fmt.Errorf("config: invalid %s %q", EnvPollCron, cfg.PollCron)
	}

	cfg.DefaultBlockMinutes = plan.DefaultBlockMinutes
	if raw := os.Getenv(EnvDefaultBlockMin); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("config: invalid %s %q", EnvDefaultBlockMin, raw)
		}
		cfg.DefaultBlockMinutes = minutes
	}

	if cfg.OAuthClientJSON, err = decodeB64(EnvOAuthClientB64); err != nil {
		return nil, err
	}
	if cfg.TokenJSON, err = decodeB64(EnvTokenB64); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SuggesterEnabled reports whether the optional AI suggester should be
// constructed at all.
func (c *Config) SuggesterEnabled() bool {
	return c.GeminiAPIKey != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func decodeB64(key string) ([]byte, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("config: invalid base64 in %s: %w", key, err)
	}
	return data, nil
}

func missingErr(key string) error {
	return fmt.Errorf("config: %w: %s", ErrMissingCredential, key)
}

// ErrMissingCredential marks a fatal configuration error: a required
// credential or identifier is absent, so a run cannot start at all.
var ErrMissingCredential = errors.New("missing required setting")
