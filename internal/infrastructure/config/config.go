package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Window    WindowConfig
	Catalog   CatalogConfig
	Detection DetectionConfig
	Telemetry TelemetryConfig
	Archive   ArchiveConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8765"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// WindowConfig names the in-game window and bounds how long a close waits
// for the peer to acknowledge. Launch, when set, is a command line started
// on session launch to host the window.
type WindowConfig struct {
	Name         string        `envconfig:"WINDOW_NAME" default:"in_game"`
	CloseTimeout time.Duration `envconfig:"WINDOW_CLOSE_TIMEOUT" default:"5s"`
	Launch       string        `envconfig:"WINDOW_LAUNCH"`
	LaunchGrace  time.Duration `envconfig:"WINDOW_LAUNCH_GRACE" default:"3s"`
}

// CatalogConfig points at the game configuration table. Empty uses the
// embedded default table.
type CatalogConfig struct {
	Path string `envconfig:"CATALOG_PATH"`
}

// DetectionConfig holds detection source configuration.
type DetectionConfig struct {
	SpoolDir string `envconfig:"DETECTION_SPOOL_DIR"`
}

// TelemetryConfig holds telemetry collaborator configuration. An empty
// endpoint disables the HTTP client.
type TelemetryConfig struct {
	Endpoint          string        `envconfig:"TELEMETRY_ENDPOINT"`
	Timeout           time.Duration `envconfig:"TELEMETRY_TIMEOUT" default:"5s"`
	RequestsPerSecond int           `envconfig:"TELEMETRY_RPS" default:"5"`
}

// ArchiveConfig holds log archive configuration. An empty directory
// disables archiving.
type ArchiveConfig struct {
	Dir    string `envconfig:"ARCHIVE_DIR"`
	Glob   string `envconfig:"ARCHIVE_GLOB" default:"*.log*"`
	Retain int    `envconfig:"ARCHIVE_RETAIN" default:"10"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
	Dir         string `envconfig:"LOG_DIR"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8765",
			Host: "127.0.0.1",
		},
		Window: WindowConfig{
			Name:         "in_game",
			CloseTimeout: 5 * time.Second,
			LaunchGrace:  3 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Timeout:           5 * time.Second,
			RequestsPerSecond: 5,
		},
		Archive: ArchiveConfig{
			Glob:   "*.log*",
			Retain: 10,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
