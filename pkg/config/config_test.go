package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	assert.Equal(t, 3, cfg.Engine.MaxRetries)
	assert.Equal(t, time.Second, cfg.Engine.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Engine.MaxDelay)
	assert.Equal(t, 30*time.Second, cfg.Engine.RequestTimeout)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 100, cfg.Monitor.HistorySize)
	assert.Equal(t, 100, cfg.Monitor.MaxAlerts)
	assert.Equal(t, 5*time.Second, cfg.Monitor.LatencyThreshold)
	assert.InDelta(t, 0.05, cfg.Monitor.ErrorRateThreshold, 1e-9)
	assert.Equal(t, 5, cfg.Pipeline.FreeTimeDays)
	assert.Equal(t, 168*time.Hour, cfg.Pipeline.DedupTTL)
	assert.Equal(t, []string{"status", "currentLocation", "eta", "ata"}, cfg.Pipeline.SignificantFields)

	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown store driver", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, wantErr: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Driver = "postgres" }, wantErr: true},
		{name: "postgres with dsn", mutate: func(c *Config) {
			c.Store.Driver = "postgres"
			c.Store.DSN = "postgres://localhost/freightsync"
		}},
		{name: "redis without addr", mutate: func(c *Config) { c.Dedup.Driver = "redis" }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.Engine.MaxRetries = -1 }, wantErr: true},
		{name: "max delay below base", mutate: func(c *Config) { c.Engine.MaxDelay = time.Millisecond }, wantErr: true},
		{name: "error rate above one", mutate: func(c *Config) { c.Monitor.ErrorRateThreshold = 1.5 }, wantErr: true},
		{name: "unknown significant field", mutate: func(c *Config) { c.Pipeline.SignificantFields = []string{"colour"} }, wantErr: true},
		{name: "missing active key", mutate: func(c *Config) { c.Vault.ActiveKeyID = "prod" }, wantErr: true},
		{name: "short vault secret", mutate: func(c *Config) { c.Vault.Keys = map[string]string{"dev": "short"} }, wantErr: true},
		{name: "webhook without secret", mutate: func(c *Config) { c.Sink.Webhook.URL = "https://hooks.example.com/x" }, wantErr: true},
		{name: "kafka without topic", mutate: func(c *Config) {
			c.Sink.Kafka.Brokers = []string{"localhost:9092"}
			c.Sink.Kafka.RecordTopic = ""
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "freightsync.yaml")
	content := `
app:
  name: freightsync-test
  env: test
engine:
  max_retries: 2
  base_delay: 500ms
monitor:
  interval: 1m
vault:
  active_key_id: k1
  keys:
    k1: a-sixteen-plus-character-secret
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("FREIGHTSYNC_HTTP_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "freightsync-test", cfg.App.Name)
	assert.Equal(t, 2, cfg.Engine.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Engine.MaxDelay)
	assert.Equal(t, time.Minute, cfg.Monitor.Interval)
	assert.Equal(t, "k1", cfg.Vault.ActiveKeyID)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("FS_TEST_TOKEN", "secret")

	tests := []struct {
		in   string
		want string
	}{
		{in: "token: ${FS_TEST_TOKEN}", want: "token: secret"},
		{in: "token: ${FS_TEST_UNSET}", want: "token: "},
		{in: "token: ${FS_TEST_UNSET:-fallback}", want: "token: fallback"},
		{in: "a: ${FS_TEST_TOKEN} b: ${FS_TEST_TOKEN}", want: "a: secret b: secret"},
		{in: "broken: ${FS_TEST_TOKEN", want: "broken: ${FS_TEST_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SubstituteEnvVars(tt.in))
		})
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("FS_TEST_HOST", "api.example.com")
	path := filepath.Join(t.TempDir(), "carrier.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: https://${FS_TEST_HOST}\n"), 0o600))

	var out struct {
		BaseURL string `yaml:"base_url"`
	}
	require.NoError(t, LoadYAML(path, &out))
	assert.Equal(t, "https://api.example.com", out.BaseURL)
}
