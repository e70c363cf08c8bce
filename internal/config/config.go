// Package config provides centralized configuration for the archiver. Values
// are layered: built-in defaults, then an optional JSON5 config file, then
// environment variables. CLI flags are applied on top by cmd/fpl-archive.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// DefaultFile is read when no --config path is given and it exists in the
// working directory.
const DefaultFile = "fpl-archive.json5"

// --------------------------------------------------------------------------
// Config struct
// --------------------------------------------------------------------------

type Config struct {
	// Output
	OutputDir string `json:"output_dir"`

	// Sources
	FPLBaseURL       string `json:"fpl_base_url"`
	VaastavBaseURL   string `json:"vaastav_base_url"`
	UnderstatBaseURL string `json:"understat_base_url"`
	UnderstatLeague  string `json:"understat_league"`
	UserAgent        string `json:"user_agent"`

	// Fetching
	FetchRetries        int     `json:"fetch_retries"`
	FetchBackoffBase    float64 `json:"fetch_backoff_base"`
	FetchTimeoutSeconds float64 `json:"fetch_timeout_seconds"`
	PlayerDelayMillis   int     `json:"player_delay_ms"`

	LogLevel string `json:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		OutputDir: "./fpl_archive",

		FPLBaseURL:       "https://fantasy.premierleague.com/api",
		VaastavBaseURL:   "https://raw.githubusercontent.com/vaastav/Fantasy-Premier-League/master/data",
		UnderstatBaseURL: "https://understat.com",
		UnderstatLeague:  "EPL",
		UserAgent:        "fpl-archive/1.0",

		FetchRetries:        3,
		FetchBackoffBase:    2.0,
		FetchTimeoutSeconds: 30,
		PlayerDelayMillis:   250,

		LogLevel: "info",
	}
}

// Load builds the configuration. path may be empty, in which case DefaultFile
// is used if it exists; an explicit path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	file, err := readFile(path)
	switch {
	case err == nil:
		if err := mergo.Merge(&cfg, file, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge config file: %w", err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := mergo.Merge(&cfg, fromEnv(), mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the fetch layer cannot work with.
func (c *Config) Validate() error {
	if c.FetchRetries < 1 {
		return fmt.Errorf("fetch_retries must be at least 1, got %d", c.FetchRetries)
	}
	if c.FetchBackoffBase < 1 {
		return fmt.Errorf("fetch_backoff_base must be at least 1, got %g", c.FetchBackoffBase)
	}
	if c.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch_timeout_seconds must be positive, got %g", c.FetchTimeoutSeconds)
	}
	for name, v := range map[string]string{
		"fpl_base_url":       c.FPLBaseURL,
		"vaastav_base_url":   c.VaastavBaseURL,
		"understat_base_url": c.UnderstatBaseURL,
		"understat_league":   c.UnderstatLeague,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	return nil
}

// FetchTimeout is the per-attempt HTTP timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds * float64(time.Second))
}

// PlayerDelay is the minimum spacing between per-player iterations.
func (c *Config) PlayerDelay() time.Duration {
	return time.Duration(c.PlayerDelayMillis) * time.Millisecond
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// --------------------------------------------------------------------------
// File layer
// --------------------------------------------------------------------------

// readFile reads name and, if present, its "<stem>.local.<ext>" sibling,
// which takes precedence.
func readFile(name string) (Config, error) {
	var out Config
	data, err := os.ReadFile(name)
	if err != nil {
		return out, err
	}
	if err := json5.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("parse %s: %w", name, err)
	}

	ext := filepath.Ext(name)
	local := strings.TrimSuffix(name, ext) + ".local" + ext
	data, err = os.ReadFile(local)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	var override Config
	if err := json5.Unmarshal(data, &override); err != nil {
		return out, fmt.Errorf("parse %s: %w", local, err)
	}
	if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
		return out, err
	}
	slog.Info("merging config with local overrides", "local", local)
	return out, nil
}

// --------------------------------------------------------------------------
// Environment layer. Unset variables stay zero so mergo skips them.
// --------------------------------------------------------------------------

func fromEnv() Config {
	return Config{
		OutputDir: envOr("FPL_ARCHIVE_OUTPUT_DIR", ""),

		FPLBaseURL:       envOr("FPL_API_BASE_URL", ""),
		VaastavBaseURL:   envOr("VAASTAV_BASE_URL", ""),
		UnderstatBaseURL: envOr("UNDERSTAT_BASE_URL", ""),
		UnderstatLeague:  envOr("UNDERSTAT_LEAGUE", ""),
		UserAgent:        envOr("FPL_ARCHIVE_USER_AGENT", ""),

		FetchRetries:        envInt("FETCH_RETRIES", 0),
		FetchBackoffBase:    envFloat("FETCH_BACKOFF_BASE", 0),
		FetchTimeoutSeconds: envFloat("FETCH_TIMEOUT_SECONDS", 0),
		PlayerDelayMillis:   envInt("PLAYER_DELAY_MS", 0),

		LogLevel: envOr("LOG_LEVEL", ""),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
