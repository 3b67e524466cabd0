package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "8765", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:8765", cfg.Server.Addr())

	assert.Equal(t, "in_game", cfg.Window.Name)
	assert.Equal(t, 5*time.Second, cfg.Window.CloseTimeout)
	assert.Empty(t, cfg.Window.Launch)
	assert.Equal(t, 3*time.Second, cfg.Window.LaunchGrace)

	assert.Empty(t, cfg.Catalog.Path)
	assert.Empty(t, cfg.Telemetry.Endpoint)
	assert.Equal(t, "*.log*", cfg.Archive.Glob)
	assert.Equal(t, 10, cfg.Archive.Retain)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.Equal(t, 50, cfg.RateLimit.RequestsPerSecond)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                 "9000",
		"HOST":                 "0.0.0.0",
		"WINDOW_NAME":          "overlay",
		"WINDOW_CLOSE_TIMEOUT": "750ms",
		"WINDOW_LAUNCH":        "overlay-host --kiosk",
		"CATALOG_PATH":         "/etc/sessionhost/games.yaml",
		"DETECTION_SPOOL_DIR":  "/run/sessionhost/events",
		"TELEMETRY_ENDPOINT":   "http://telemetry.local",
		"TELEMETRY_TIMEOUT":    "2s",
		"ARCHIVE_DIR":          "/var/lib/sessionhost/archive",
		"ARCHIVE_RETAIN":       "3",
		"LOG_LEVEL":            "debug",
		"LOG_DEV":              "true",
		"LOG_DIR":              "/var/log/sessionhost",
		"RATE_LIMIT_ENABLED":   "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr())
	assert.Equal(t, "overlay", cfg.Window.Name)
	assert.Equal(t, 750*time.Millisecond, cfg.Window.CloseTimeout)
	assert.Equal(t, "overlay-host --kiosk", cfg.Window.Launch)
	assert.Equal(t, "/etc/sessionhost/games.yaml", cfg.Catalog.Path)
	assert.Equal(t, "/run/sessionhost/events", cfg.Detection.SpoolDir)
	assert.Equal(t, "http://telemetry.local", cfg.Telemetry.Endpoint)
	assert.Equal(t, 2*time.Second, cfg.Telemetry.Timeout)
	assert.Equal(t, "/var/lib/sessionhost/archive", cfg.Archive.Dir)
	assert.Equal(t, 3, cfg.Archive.Retain)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "/var/log/sessionhost", cfg.Logging.Dir)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("WINDOW_CLOSE_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
}
