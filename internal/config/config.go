// Package config provides layered configuration loading for the CLI.
// Values come from the process environment, backfilled from .env files in the
// working directory, the user config directory and the home directory.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrCredentialsRequired is returned when neither GEMINI_API_KEY nor
	// GOOGLE_CLOUD_PROJECT is set.
	ErrCredentialsRequired = errors.New("config: GEMINI_API_KEY or GOOGLE_CLOUD_PROJECT is required")
)

// AuthMode identifies which backend the credentials select.
type AuthMode string

const (
	// AuthAPIKey authenticates against the Gemini API with an API key.
	AuthAPIKey AuthMode = "api_key"
	// AuthVertex authenticates against Vertex AI with a project/location.
	AuthVertex AuthMode = "vertex"
)

// Config holds all configuration for the application.
type Config struct {
	// Credential settings
	GeminiAPIKey        string `env:"GEMINI_API_KEY" json:"-"` // Masked in JSON
	GoogleCloudProject  string `env:"GOOGLE_CLOUD_PROJECT" json:"google_cloud_project,omitempty"`
	GoogleCloudLocation string `env:"GOOGLE_CLOUD_LOCATION, default=us-central1" json:"google_cloud_location"`

	// Generation settings
	ModelID string `env:"VEO_MODEL_ID, default=veo-3.1-generate-preview" json:"model_id"`

	// Polling settings
	PollTimeoutSec       int `env:"POLL_TIMEOUT_SEC, default=900" json:"poll_timeout_sec"`
	UploadPollTimeoutSec int `env:"UPLOAD_POLL_TIMEOUT_SEC, default=120" json:"upload_poll_timeout_sec"`

	// History settings
	HistoryFile string `env:"VEO_HISTORY_FILE, default=.veo_history.json" json:"history_file"`

	// Optional S3 settings for publishing finished artifacts
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// Load reads configuration from .env layers and environment variables.
// Process environment always wins; the .env layers only backfill unset keys.
// Credential presence is checked by Validate, not here, so commands that
// never touch the service (history listing) work without credentials.
func Load(ctx context.Context) (*Config, error) {
	loadDotenvLayers()

	cfg := &Config{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// loadDotenvLayers loads .env files from the working directory, the user
// config directory and the home directory, in that precedence order.
// godotenv never overwrites variables that are already set, so earlier
// layers win over later ones and the real environment wins over all files.
func loadDotenvLayers() {
	_ = godotenv.Load()

	xdg := os.Getenv("XDG_CONFIG_HOME")
	home, err := os.UserHomeDir()
	if xdg == "" && err == nil {
		xdg = filepath.Join(home, ".config")
	}
	if xdg != "" {
		_ = godotenv.Load(filepath.Join(xdg, "veoctl", ".env"))
	}
	if err == nil {
		_ = godotenv.Load(filepath.Join(home, ".env"))
	}
}

// Validate checks that a usable credential source is present.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" && c.GoogleCloudProject == "" {
		return ErrCredentialsRequired
	}
	return nil
}

// AuthMode reports which authentication backend the configuration selects.
// An API key takes precedence over a project/location pair.
func (c *Config) AuthMode() AuthMode {
	if c.GeminiAPIKey != "" {
		return AuthAPIKey
	}
	return AuthVertex
}

// S3Enabled returns true if S3 publishing configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// PollTimeout returns the operation poll ceiling as a duration.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSec) * time.Second
}

// UploadPollTimeout returns the upload-processing poll ceiling as a duration.
func (c *Config) UploadPollTimeout() time.Duration {
	return time.Duration(c.UploadPollTimeoutSec) * time.Second
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for scripting.
// Otherwise, it outputs human-readable text logs. Logs go to stderr so the
// history listing and piped output stay clean on stdout.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{AuthMode: %s, GoogleCloudProject: %s, GoogleCloudLocation: %s, ModelID: %s, PollTimeoutSec: %d, HistoryFile: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.AuthMode(),
		c.GoogleCloudProject,
		c.GoogleCloudLocation,
		c.ModelID,
		c.PollTimeoutSec,
		c.HistoryFile,
		c.S3Bucket,
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
