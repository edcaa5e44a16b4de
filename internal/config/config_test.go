package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  socket_path: /tmp/custom.sock
  client_capacity: 32
world:
  kind: OBSTACLES
  width: 64
  height: 64
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.sock", cfg.Server.SocketPath)
	assert.Equal(t, 32, cfg.Server.ClientCapacity)
	assert.Equal(t, "OBSTACLES", cfg.World.Kind)
	assert.Equal(t, 64, cfg.World.Width)
}

func TestLoadConfig_MissingFileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestApplyDefaults_FillsZeroValuesOnly(t *testing.T) {
	cfg := &Config{}
	cfg.Server.ClientCapacity = 99
	cfg.applyDefaults()

	assert.Equal(t, 99, cfg.Server.ClientCapacity, "an already-set field must not be overwritten")
	assert.Equal(t, "/tmp/rw_test.sock", cfg.Server.SocketPath)
	assert.Equal(t, 32, cfg.World.Width)
	assert.Equal(t, "WRAP", cfg.World.Kind)
	assert.Equal(t, 0.25, cfg.World.ProbUp)
	assert.Equal(t, "file", cfg.Persistence.Backend)
	assert.Equal(t, "local", cfg.Notify.Backend)
}

func TestApplyEnvOverrides_OverridesFileValues(t *testing.T) {
	t.Setenv("GRIDWALK_SOCKET_PATH", "/tmp/env.sock")
	t.Setenv("GRIDWALK_WORLD_WIDTH", "128")
	t.Setenv("GRIDWALK_OBSERVER_ENABLED", "true")

	cfg := &Config{}
	cfg.Server.SocketPath = "/tmp/file.sock"
	cfg.World.Width = 16
	cfg.applyEnvOverrides()

	assert.Equal(t, "/tmp/env.sock", cfg.Server.SocketPath)
	assert.Equal(t, 128, cfg.World.Width)
	assert.True(t, cfg.Observer.Enabled)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("GRIDWALK_TEST_STR", "value")
	assert.Equal(t, "value", getEnv("GRIDWALK_TEST_STR", "default"))
	assert.Equal(t, "default", getEnv("GRIDWALK_TEST_STR_UNSET", "default"))

	t.Setenv("GRIDWALK_TEST_INT", "42")
	assert.Equal(t, 42, getEnvInt("GRIDWALK_TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("GRIDWALK_TEST_INT_UNSET", 7))

	t.Setenv("GRIDWALK_TEST_BOOL", "1")
	assert.True(t, getEnvBool("GRIDWALK_TEST_BOOL", false))
	assert.False(t, getEnvBool("GRIDWALK_TEST_BOOL_UNSET", false))
}
