package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsOnMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "./databridge.db", cfg.Store.Path)
	assert.Equal(t, 3, cfg.Peer.ConsecutiveFailThreshold)
	assert.Equal(t, 1500*time.Millisecond, cfg.HTTP.ConnectTimeout)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoad_FilePatchOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"server": {"port": "9090", "shared_secret": "s3cret"},
		"peer": {"base_url": "https://peer.example/api", "poll_interval_ms": 2500},
		"store": {"path": "/var/lib/bridge/bridge.db"},
		"devices": {"printer": {"host": "10.0.0.5", "port": 4001, "simulation": true}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Server.SharedSecret)
	assert.Equal(t, "https://peer.example/api", cfg.Peer.BaseURL)
	assert.Equal(t, 2500*time.Millisecond, cfg.Peer.PollInterval)
	assert.Equal(t, "/var/lib/bridge/bridge.db", cfg.Store.Path)
	assert.Equal(t, "10.0.0.5", cfg.Devices.Printer.Host)
	assert.Equal(t, 4001, cfg.Devices.Printer.Port)
	assert.True(t, cfg.Devices.Printer.Simulation)
	// Untouched siblings keep their defaults.
	assert.Equal(t, "/health", cfg.Peer.HealthPath)
}

func TestLoad_MalformedFileErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"port":"9090"}}`), 0o644))

	t.Setenv("BRIDGE_PORT", "7070")
	t.Setenv("BRIDGE_SHARED_SECRET", "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "env-secret", cfg.Server.SharedSecret)
}

func TestConfig_Validate_Defaults(t *testing.T) {
	cfg := defaults()
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_MissingPort(t *testing.T) {
	cfg := defaults()
	cfg.Server.Port = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "server.port"))
}

func TestConfig_Validate_MissingStorePath(t *testing.T) {
	cfg := defaults()
	cfg.Store.Path = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.path")
}

func TestConfig_Validate_RetryCapBelowBase(t *testing.T) {
	cfg := defaults()
	cfg.HTTP.RetryBase = 10 * time.Second
	cfg.HTTP.RetryCap = 5 * time.Second

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry_cap_ms")
}

func TestConfig_Validate_ConnectTimeoutTooLong(t *testing.T) {
	cfg := defaults()
	cfg.HTTP.ConnectTimeout = 2 * time.Second

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect_timeout_ms")
}

func TestConfig_Validate_AccumulatesMultipleErrors(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, field := range []string{"server.port", "store.path", "peer.consecutive_fail_threshold", "http.retry_base_ms"} {
		assert.Contains(t, msg, field)
	}
}
