package config

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

// setRequired sets the minimal environment for Load to succeed.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv(EnvNotionToken, "secret-token")
	t.Setenv(EnvNotionDatabaseID, "db-123")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CalendarID != DefaultCalendarID {
		t.Errorf("CalendarID = %q", cfg.CalendarID)
	}
	if cfg.TimezoneName != DefaultTimezone || cfg.Location == nil {
		t.Errorf("timezone = %q (%v)", cfg.TimezoneName, cfg.Location)
	}
	if cfg.WorkStart.String() != "09:00" || cfg.WorkEnd.String() != "18:00" {
		t.Errorf("work hours = %s..%s", cfg.WorkStart, cfg.WorkEnd)
	}
	if cfg.PollInterval != 90*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.SuggesterEnabled() {
		t.Error("suggester should be disabled without an API key")
	}
}

func TestLoad_MissingCredentialsFatal(t *testing.T) {
	t.Setenv(EnvNotionToken, "")
	t.Setenv(EnvNotionDatabaseID, "")

	_, err := Load()
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}

	t.Setenv(EnvNotionToken, "token")
	if _, err := Load(); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential for missing database id, got %v", err)
	}
}

func TestLoad_InvalidTimezone(t *testing.T) {
	setRequired(t)
	t.Setenv(EnvTimezone, "Mars/Olympus_Mons")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestLoad_WorkHours(t *testing.T) {
	setRequired(t)
	t.Setenv(EnvWorkStart, "08:30")
	t.Setenv(EnvWorkEnd, "16:45")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WorkStart.Hour != 8 || cfg.WorkStart.Minute != 30 {
		t.Errorf("WorkStart = %v", cfg.WorkStart)
	}
	if cfg.WorkEnd.Hour != 16 || cfg.WorkEnd.Minute != 45 {
		t.Errorf("WorkEnd = %v", cfg.WorkEnd)
	}

	t.Setenv(EnvWorkStart, "25:00")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid work start")
	}
}

func TestLoad_PollSettings(t *testing.T) {
	setRequired(t)
	t.Setenv(EnvPollIntervalSec, "30")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}

	t.Setenv(EnvPollIntervalSec, "zero")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric poll interval")
	}

	t.Setenv(EnvPollIntervalSec, "")
	t.Setenv(EnvPollCron, "*/5 * * * *")
	cfg, err = Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PollCron != "*/5 * * * *" {
		t.Errorf("PollCron = %q", cfg.PollCron)
	}

	t.Setenv(EnvPollCron, "not a cron")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestLoad_Base64Material(t *testing.T) {
	setRequired(t)
	clientJSON := `{"installed":{"client_id":"abc"}}`
	t.Setenv(EnvOAuthClientB64, base64.StdEncoding.EncodeToString([]byte(clientJSON)))

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if string(cfg.OAuthClientJSON) != clientJSON {
		t.Errorf("OAuthClientJSON = %q", cfg.OAuthClientJSON)
	}

	t.Setenv(EnvTokenB64, "!!not base64!!")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid base64 token")
	}
}
