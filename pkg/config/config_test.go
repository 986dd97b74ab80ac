package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 3003, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Server.PortAttempts)
	assert.Equal(t, 300*time.Second, cfg.Cache.CacheDuration())
	assert.Equal(t, 5, cfg.Cache.MaxRetries)
	assert.Equal(t, 300*time.Second, cfg.Cache.CooldownDuration())
	assert.Equal(t, 30*time.Second, cfg.Cache.MaxBackoffDuration())
	assert.Equal(t, time.Hour, cfg.Cache.RestoreWindowDuration())
	assert.Equal(t, 30*time.Minute, cfg.Cache.MirrorReadWindowDuration())
	assert.Equal(t, 15*time.Second, cfg.Upstream.TimeoutDuration())
	assert.Equal(t, ProviderCoinGecko, cfg.Upstream.Provider)
	assert.False(t, cfg.MirrorEnabled())
	assert.Contains(t, cfg.Server.AllowedOrigins, "*")
}

func TestLoadFileYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
  allowed_origins: ["https://example.com"]
upstream:
  provider: coincap
  assets:
    - symbol: btc
      provider_id: bitcoin
      name: Bitcoin
cache:
  duration: 60
mirror:
  driver: redis
  url: redis://localhost:6379/0
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"https://example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, ProviderCoinCap, cfg.Upstream.Provider)
	require.Len(t, cfg.Upstream.Assets, 1)
	assert.Equal(t, "bitcoin", cfg.Upstream.Assets[0].ProviderID)
	assert.Equal(t, 60*time.Second, cfg.Cache.CacheDuration())
	assert.Equal(t, 5, cfg.Cache.MaxRetries, "unset keys keep defaults")
	assert.True(t, cfg.MirrorEnabled())
}

func TestLoadFileEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CACHE_DURATION", "10")
	t.Setenv("MAX_RETRIES", "3")
	t.Setenv("RATE_LIMIT_COOLDOWN", "120")
	t.Setenv("MAX_BACKOFF", "8")
	t.Setenv("ALLOWED_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("DURABLE_STORE_DRIVER", "mongo")
	t.Setenv("DURABLE_STORE_URL", "mongodb://db:27017")
	t.Setenv("UPSTREAM_API_KEY", "secret")
	t.Setenv("WARM_ON_START", "false")

	cfg, err := LoadFile(writeConfig(t, "server:\n  port: 8080\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port, "env wins over yaml")
	assert.Equal(t, 10*time.Second, cfg.Cache.CacheDuration())
	assert.Equal(t, 3, cfg.Cache.MaxRetries)
	assert.Equal(t, 2*time.Minute, cfg.Cache.CooldownDuration())
	assert.Equal(t, 8*time.Second, cfg.Cache.MaxBackoffDuration())
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, MirrorMongo, cfg.Mirror.Driver)
	assert.Equal(t, "mongodb://db:27017", cfg.Mirror.URL)
	assert.Equal(t, "secret", cfg.Upstream.APIKey)
	assert.False(t, cfg.Cache.WarmOnStart)
}

func TestLoadFileMongoURIFallback(t *testing.T) {
	t.Setenv("DURABLE_STORE_DRIVER", "mongo")
	t.Setenv("MONGO_URI", "mongodb://legacy:27017")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "mongodb://legacy:27017", cfg.Mirror.URL)
}

func TestLoadFileInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		yaml string
	}{
		{name: "non numeric port", env: map[string]string{"PORT": "abc"}},
		{name: "zero retries", env: map[string]string{"MAX_RETRIES": "0"}},
		{name: "zero backoff cap", env: map[string]string{"MAX_BACKOFF": "0"}},
		{name: "negative backoff base", env: map[string]string{"BACKOFF_BASE": "-1"}},
		{name: "unknown provider", env: map[string]string{"UPSTREAM_PROVIDER": "yahoo"}},
		{name: "mirror without url", env: map[string]string{"DURABLE_STORE_DRIVER": "redis"}},
		{name: "unknown mirror", env: map[string]string{"DURABLE_STORE_DRIVER": "cassandra"}},
		{name: "broken yaml", yaml: "server: [1, 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "none.yaml")
			if tt.yaml != "" {
				path = writeConfig(t, tt.yaml)
			}
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}
