package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	t.Setenv("CONFIG_FILE", p)
	return p
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 20*time.Second, cfg.Call.RingTimeout)
	assert.Equal(t, 64, cfg.Signal.SendBuffer)
	assert.Equal(t, "data/calls.db", cfg.History.Path)
	assert.True(t, cfg.Media.EchoCancellation)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	writeConfig(t, `
port: 9090
user:
  id: "42"
  name: Alice
call:
  ring_timeout: 5s
ice_servers:
  - stun:stun.example.org:3478
`)
	t.Setenv("VOICE_PORT", "9191")
	t.Setenv("VOICE_BACKEND_BASE_URL", "https://calls.example.org/api")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Port)
	assert.Equal(t, "42", cfg.User.ID)
	assert.Equal(t, "Alice", cfg.User.Name)
	assert.Equal(t, 5*time.Second, cfg.Call.RingTimeout)
	assert.Equal(t, []string{"stun:stun.example.org:3478"}, cfg.ICEServers)
	assert.Equal(t, "https://calls.example.org/api", cfg.Backend.BaseURL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	writeConfig(t, "port: 70000\n")
	_, err := Load()
	assert.ErrorContains(t, err, "invalid port")

	writeConfig(t, "call:\n  ring_timeout: 0s\n")
	_, err = Load()
	assert.ErrorContains(t, err, "ring_timeout")
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	writeConfig(t, "port: [1, 2\n")
	_, err := Load()
	assert.Error(t, err)
}

func TestWatchWithoutFileIsNoop(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NoError(t, Watch(nil))
}

func TestApplyLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	ApplyLogLevel("DEBUG")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	ApplyLogLevel("nonsense")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
