package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8090", cfg.Server.Port)
	assert.Equal(t, "data", cfg.Storage.DataDir)
	assert.Equal(t, "https://api.tzkt.io", cfg.Tzkt.BaseURL)
	assert.Equal(t, time.Second, cfg.Tzkt.MinDelay())
	assert.Equal(t, 10*time.Second, cfg.Tzkt.Timeout())
	assert.Equal(t, int64(200), cfg.Etherlink.MinDelayMillis)
	assert.Equal(t, 500*time.Millisecond, cfg.Pricing.MinDelay())
	assert.Equal(t, 100, cfg.Cache.SoftCap)
	assert.Equal(t, 80, cfg.Cache.TrimTo)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 5, cfg.Refresh.TopTokens)
}

func TestLoadConfigAppliesDefaultsOverPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  port: ":9999"
tzkt:
  minDelayMillis: 2000
logging:
  level: "debug"
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Tzkt.MinDelay())
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Everything unset still gets its default.
	assert.Equal(t, "https://api.tzkt.io", cfg.Tzkt.BaseURL)
	assert.Equal(t, "https://node.mainnet.etherlink.com", cfg.Etherlink.RPCURL)
	assert.Equal(t, 1, cfg.Pricing.CacheTTLMinutes)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [broken"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
