package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10*time.Second, cfg.CorrelationTimeout())
	assert.Equal(t, time.Second, cfg.CorrelationTick())
	assert.Equal(t, "hmac-sha-256", cfg.Credentials.Algorithm)
	assert.True(t, cfg.GetValidateSSL())
	assert.False(t, cfg.GetVerbose())
}

func TestFindAndLoadConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TENTSPEC_CFG_HOST", "alice.example")
	content := `
server: https://${TENTSPEC_CFG_HOST}/tent
credentials:
  macKeyID: u123
  macKey: secret
asyncTimeout: 500
validators: [posts_feed]
verbose: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tentspec.yaml"), []byte(content), 0o644))

	cfg, err := FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://alice.example/tent", cfg.Server)
	assert.Equal(t, "u123", cfg.Credentials.ID)
	assert.Equal(t, 500, cfg.AsyncTimeout)
	assert.Equal(t, 1000, cfg.AsyncTick)
	assert.Equal(t, []string{"posts_feed"}, cfg.Validators)
	assert.True(t, cfg.GetVerbose())
}

func TestLoadJSONConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".tentspec.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server": "https://bob.example", "timeout": 5000}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Timeout)
}

func TestFindAndLoadConfigMissing(t *testing.T) {
	cfg, err := FindAndLoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestApplyEnv(t *testing.T) {
	vars := map[string]string{
		EnvRemoteServer: "https://carol.example",
		EnvMACKeyID:     "id",
		EnvMACKey:       "key",
		EnvDatabaseURL:  "sqlite3:///tmp/tent.db",
		EnvAsyncTimeout: "250",
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	})

	assert.Equal(t, "https://carol.example", cfg.Server)
	assert.Equal(t, Credentials{ID: "id", Algorithm: "hmac-sha-256", Key: "key"}, cfg.Credentials)
	assert.Equal(t, "sqlite3:///tmp/tent.db", cfg.DatabaseURL)
	assert.Equal(t, 250, cfg.AsyncTimeout)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate())

	cfg.Server = "https://alice.example"
	assert.NoError(t, cfg.Validate())

	cfg.Credentials.ID = "only-id"
	assert.Error(t, cfg.Validate())
}

func TestMerge(t *testing.T) {
	base := DefaultConfig()
	base.Headers = map[string]string{"Accept": "application/json"}

	merged := base.Merge(&Config{
		Server:  "https://alice.example",
		Headers: map[string]string{"User-Agent": "tentspec"},
		NoColor: BoolPtr(true),
	})

	assert.Equal(t, "https://alice.example", merged.Server)
	assert.Equal(t, 30000, merged.Timeout)
	assert.Len(t, merged.Headers, 2)
	assert.Len(t, base.Headers, 1)
	assert.True(t, merged.GetNoColor())
	assert.Same(t, base, base.Merge(nil))
}
