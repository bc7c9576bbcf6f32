package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "contextrules", cfg.Service.Name)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, "http://localhost:1026/ngsi-ld/v1", cfg.Store.BaseURL)
	assert.Equal(t, "NGSILD-Tenant", cfg.Store.TenantHeader)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `{
		"service": {"name": "rules-test", "log_level": "debug"},
		"nats": {"url": "nats://broker:4222", "reconnect_wait": "5s"},
		"store": {"base_url": "http://orion:1026/ngsi-ld/v1"}
	}`)

	loader := NewLoader()
	cfg, err := loader.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "rules-test", cfg.Service.Name)
	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, 5*time.Second, cfg.NATS.ReconnectWait)
	assert.Equal(t, "http://orion:1026/ngsi-ld/v1", cfg.Store.BaseURL)

	// Unset fields keep their defaults
	assert.Equal(t, ":9090", cfg.Service.MetricsAddr)
	assert.Equal(t, "NGSILD-Tenant", cfg.Store.TenantHeader)
}

func TestLoadLayersMergeInOrder(t *testing.T) {
	base := writeConfigFile(t, `{"service": {"name": "base", "log_level": "warn"}}`)
	override := writeConfigFile(t, `{"service": {"name": "override"}}`)

	loader := NewLoader()
	loader.AddLayer(base)
	loader.AddLayer(override)

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "override", cfg.Service.Name)
	assert.Equal(t, "warn", cfg.Service.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	loader := NewLoader()
	_, err := loader.LoadFile("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONTEXTRULES_NATS_URL", "nats://env-broker:4222")
	t.Setenv("CONTEXTRULES_STORE_URL", "http://env-store:1026/ngsi-ld/v1")
	t.Setenv("CONTEXTRULES_LOG_LEVEL", "DEBUG")

	loader := NewLoader()
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "nats://env-broker:4222", cfg.NATS.URL)
	assert.Equal(t, "http://env-store:1026/ngsi-ld/v1", cfg.Store.BaseURL)
	assert.Equal(t, "debug", cfg.Service.LogLevel)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(_ *Config) {}, false},
		{"missing service name", func(c *Config) { c.Service.Name = "" }, true},
		{"bad log level", func(c *Config) { c.Service.LogLevel = "verbose" }, true},
		{"bad log format", func(c *Config) { c.Service.LogFormat = "xml" }, true},
		{"missing nats url", func(c *Config) { c.NATS.URL = "" }, true},
		{"missing store url", func(c *Config) { c.Store.BaseURL = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewLoader().getDefaults()
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

func TestLoadWithValidation(t *testing.T) {
	path := writeConfigFile(t, `{"nats": {"url": ""}}`)

	loader := NewLoader()
	loader.EnableValidation(true)
	loader.AddLayer(path)

	_, err := loader.Load()
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	cfg := NewLoader().getDefaults()
	clone := cfg.Clone()

	clone.Service.Name = "changed"
	assert.Equal(t, "contextrules", cfg.Service.Name)
}

func TestSaveToFileRoundTrip(t *testing.T) {
	cfg := NewLoader().getDefaults()
	cfg.Service.Name = "saved"

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := NewLoader().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Service.Name)
}
