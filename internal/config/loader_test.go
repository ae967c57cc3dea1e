package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_RequiresBaseURLAndSecret(t *testing.T) {
	t.Setenv("TIMETABLE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("TIMETABLE_API_BASE_URL", "")
	t.Setenv("TIMETABLE_STATE_SECRET", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error for missing required values")
	}
	for _, key := range []string{"TIMETABLE_API_BASE_URL", "TIMETABLE_STATE_SECRET"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s to be reported, got %v", key, err)
		}
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timetable.yaml")
	content := "api_base_url: https://file.example.org/api/v1\nstate_secret: file-secret\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("TIMETABLE_CONFIG", path)
	t.Setenv("TIMETABLE_API_BASE_URL", "https://env.example.org/api/v1/")
	t.Setenv("TIMETABLE_STATE_SECRET", "")
	t.Setenv("TIMETABLE_STATE_DSN", "")
	t.Setenv("TIMETABLE_LOG_LEVEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIBaseURL != "https://env.example.org/api/v1" {
		t.Fatalf("expected env base URL with trailing slash trimmed, got %q", cfg.APIBaseURL)
	}
	if cfg.StateSecret != "file-secret" {
		t.Fatalf("expected file secret to survive, got %q", cfg.StateSecret)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected file log level, got %q", cfg.LogLevel)
	}
	if cfg.StateDSN == "" {
		t.Fatal("expected default state DSN")
	}
}

func TestLoad_RejectsMalformedBaseURL(t *testing.T) {
	t.Setenv("TIMETABLE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("TIMETABLE_API_BASE_URL", "not-a-url")
	t.Setenv("TIMETABLE_STATE_SECRET", "secret")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "TIMETABLE_API_BASE_URL") {
		t.Fatalf("expected invalid base URL to be reported, got %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatal("expected unknown level to error")
	}
	for _, value := range []string{"", "info", "debug", "warn", "warning", "error", "DEBUG"} {
		if _, err := ParseLevel(value); err != nil {
			t.Fatalf("expected level %q to parse, got %v", value, err)
		}
	}
}
