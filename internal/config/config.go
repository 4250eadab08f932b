// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrManifestSourceRequired is returned when neither a manifest path nor
	// a reader API base URL is configured.
	ErrManifestSourceRequired = errors.New("config: MANIFEST_PATH, MANIFEST_URL or READER_API_URL is required")
	// ErrInvalidVolume is returned when MASTER_VOLUME is outside [0,1].
	ErrInvalidVolume = errors.New("config: MASTER_VOLUME must be within [0,1]")
)

// Config holds all configuration for the reading session runtime.
type Config struct {
	// Manifest sources. Exactly one of MANIFEST_PATH, MANIFEST_URL or the
	// reader API triple is used, in that order of precedence.
	ManifestPath string `env:"MANIFEST_PATH" json:"manifest_path,omitempty"`
	ManifestURL  string `env:"MANIFEST_URL" json:"manifest_url,omitempty"`

	// Reader API settings (chunk retrieval keyed by user/book/page).
	ReaderAPIURL string `env:"READER_API_URL" json:"reader_api_url,omitempty"`
	UserID       string `env:"USER_ID" json:"user_id,omitempty"`
	BookTitle    string `env:"BOOK_TITLE" json:"book_title,omitempty"`
	Page         int    `env:"PAGE, default=1" json:"page"`

	// Detection settings
	DwellMs      int     `env:"DWELL_MS, default=550" json:"dwell_ms"`
	SentinelFrac float64 `env:"SENTINEL_FRAC, default=0.2" json:"sentinel_frac"`

	// Playback settings
	FadeMs       int     `env:"FADE_MS, default=600" json:"fade_ms"`
	MasterVolume float64 `env:"MASTER_VOLUME, default=1.0" json:"master_volume"`
	AutoSwitch   bool    `env:"AUTO_SWITCH, default=true" json:"auto_switch"`
	SampleRate   int     `env:"SAMPLE_RATE, default=44100" json:"sample_rate"`
	Silent       bool    `env:"SILENT, default=false" json:"silent"` // no output device

	// Fetch settings
	FetchRateLimit float64 `env:"FETCH_RATE_LIMIT, default=4" json:"fetch_rate_limit"` // requests/sec

	// Optional S3 settings for s3:// audio URLs
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Dev server settings
	Port        int    `env:"PORT, default=8000" json:"port"`
	ManifestDir string `env:"MANIFEST_DIR, default=manifests" json:"manifest_dir"`
	AudioDir    string `env:"AUDIO_DIR, default=gen_musics" json:"audio_dir"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that a reading session can be started from this
// configuration. The dev server does not require a manifest source.
func (c *Config) Validate() error {
	if c.ManifestPath == "" && c.ManifestURL == "" && c.ReaderAPIURL == "" {
		return ErrManifestSourceRequired
	}
	if c.MasterVolume < 0 || c.MasterVolume > 1 {
		return ErrInvalidVolume
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{ManifestPath: %s, ManifestURL: %s, ReaderAPIURL: %s, DwellMs: %d, FadeMs: %d, MasterVolume: %.2f, AutoSwitch: %t, SampleRate: %d, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.ManifestPath,
		c.ManifestURL,
		c.ReaderAPIURL,
		c.DwellMs,
		c.FadeMs,
		c.MasterVolume,
		c.AutoSwitch,
		c.SampleRate,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
