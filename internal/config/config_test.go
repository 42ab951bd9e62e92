package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
proxy:
  bind: "127.0.0.1:9999"
  online-mode: false
  compression-threshold: -1
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Proxy.Bind)
	assert.False(t, cfg.Proxy.OnlineMode)
	assert.Equal(t, -1, cfg.Proxy.CompressionThreshold)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched keys keep their defaults.
	assert.Equal(t, 20, cfg.Proxy.MaxPlayers)
	assert.Equal(t, 1024, cfg.Proxy.EncryptionKeySize)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("proxy: [not a map"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
