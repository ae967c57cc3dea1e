package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config captures configuration values for the timetable console.
type Config struct {
	// APIBaseURL is the root of the school scheduling backend, including the
	// API prefix, e.g. "https://school.example.org/api/v1".
	APIBaseURL string `yaml:"api_base_url"`
	// StateDSN points at the local SQLite database holding the persisted
	// session and view preferences.
	StateDSN string `yaml:"state_dsn"`
	// StateSecret seals stored credentials at rest. Required.
	StateSecret string `yaml:"state_secret"`
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
}

// Load reads the optional YAML config file and applies environment overrides.
//
// The file path is taken from TIMETABLE_CONFIG and defaults to
// "timetable.yaml" in the working directory; a missing file is not an error.
// Environment variables always win over file values. Required values are
// validated after merging and reported together.
func Load() (Config, error) {
	cfg := Config{
		StateDSN: "file:timetable-state.db?_foreign_keys=on",
		LogLevel: "info",
	}

	path := strings.TrimSpace(os.Getenv("TIMETABLE_CONFIG"))
	if path == "" {
		path = "timetable.yaml"
	}
	if err := loadFile(path, &cfg); err != nil {
		return Config{}, err
	}

	applyEnv(&cfg)

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 2)

	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		missing = append(missing, "TIMETABLE_API_BASE_URL")
	} else if u, err := url.Parse(cfg.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		invalid = append(invalid, "TIMETABLE_API_BASE_URL")
	}

	if strings.TrimSpace(cfg.StateSecret) == "" {
		missing = append(missing, "TIMETABLE_STATE_SECRET")
	}

	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		invalid = append(invalid, "TIMETABLE_LOG_LEVEL")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("не заданы обязательные параметры конфигурации: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("недопустимые значения параметров конфигурации: %s", strings.Join(invalid, ", "))
	}

	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("не удалось разобрать файл конфигурации %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("TIMETABLE_API_BASE_URL")); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("TIMETABLE_STATE_DSN")); v != "" {
		cfg.StateDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("TIMETABLE_STATE_SECRET")); v != "" {
		cfg.StateSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("TIMETABLE_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
}

// ParseLevel maps a config log level string onto slog levels.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", value)
	}
}
