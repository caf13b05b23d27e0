package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	WebshareBaseURL  string `envconfig:"WEBSHARE_BASE_URL"`
	WebshareUsername string `envconfig:"WEBSHARE_USERNAME"`
	WebsharePassword string `envconfig:"WEBSHARE_PASSWORD"`

	DownloadPath      string        `envconfig:"DOWNLOAD_PATH" default:"/downloads"`
	MaxParallel       int64         `envconfig:"MAX_PARALLEL" default:"3"`
	TaskRetention     time.Duration `envconfig:"TASK_RETENTION" default:"30s"`
	SweepInterval     time.Duration `envconfig:"SWEEP_INTERVAL" default:"10s"`
	KeepDownloadedFor time.Duration `envconfig:"KEEP_DOWNLOADED_FOR" default:"0"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`
	DBPath            string        `envconfig:"DB_PATH" default:"downloads.db"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		OTLPEndpoint string `envconfig:"TELEMETRY_OTLP_ENDPOINT"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:5000"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

// CredentialsConfigured reports whether Webshare credentials were supplied.
func (c *Config) CredentialsConfigured() bool {
	return c.WebshareUsername != "" && c.WebsharePassword != ""
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
