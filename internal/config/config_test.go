package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://graph.cars.com/graphql/api", cfg.Remote.URL)
	assert.Equal(t, 1900, cfg.Domain.YearMin)
	assert.Equal(t, 2024, cfg.Domain.YearMax)
	assert.Equal(t, int64(0), cfg.Domain.PriceMin)
	assert.Equal(t, int64(500000000), cfg.Domain.PriceMax)
	assert.Equal(t, 250, cfg.Fetch.PageSize)
	assert.Equal(t, 30, cfg.Fetch.Threads)
	assert.Equal(t, 10000, cfg.Fetch.Threshold)
	assert.False(t, cfg.Proxy.Enabled)
	assert.True(t, cfg.Logging.Development)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
remote:
  url: https://example.test/graphql
  api_key: secret
domain:
  year_min: 2000
  year_max: 2003
fetch:
  threads: 4
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.test/graphql", cfg.Remote.URL)
	assert.Equal(t, "secret", cfg.Remote.APIKey)
	assert.Equal(t, 2000, cfg.Domain.YearMin)
	assert.Equal(t, 2003, cfg.Domain.YearMax)
	assert.Equal(t, 4, cfg.Fetch.Threads)
	// Untouched sections keep defaults.
	assert.Equal(t, 250, cfg.Fetch.PageSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base, err := Load("")
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.Remote.URL = "" }},
		{"inverted years", func(c *Config) { c.Domain.YearMin = 2025; c.Domain.YearMax = 2024 }},
		{"inverted prices", func(c *Config) { c.Domain.PriceMin = 10; c.Domain.PriceMax = 5 }},
		{"zero page size", func(c *Config) { c.Fetch.PageSize = 0 }},
		{"zero threads", func(c *Config) { c.Fetch.Threads = 0 }},
		{"zero threshold", func(c *Config) { c.Fetch.Threshold = 0 }},
		{"proxy without file", func(c *Config) { c.Proxy.Enabled = true; c.Proxy.File = "" }},
		{"proxy without attempts", func(c *Config) { c.Proxy.Enabled = true; c.Proxy.MaxAttempts = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
