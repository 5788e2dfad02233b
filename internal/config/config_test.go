package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fbmc-quality/internal/cache"
	"fbmc-quality/internal/data"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) string { return "" }

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, cache.DriverSQLite, c.Cache.Driver)
	assert.Equal(t, data.DefaultJAOBaseURL, c.JAO.BaseURL)
	assert.Equal(t, 4, c.Acquire.Workers)
}

func TestLoadFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zones.yaml"), []byte(`
region: test
zones:
  - code: NO1
    eic: 10YNO-1--------2
    neighbours: [SE3]
  - code: SE3
    eic: 10Y1001A1001A46L
    neighbours: [NO1]
`), 0o644))
	path := filepath.Join(dir, "fbmc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
zones_file: zones.yaml
cache:
  path: /tmp/x.db
jao:
  timeout: 5s
acquire:
  workers: 8
logging:
  level: debug
`), 0o644))

	for _, k := range []string{"DB_PATH", "DB_DSN", "ENTSOE_API_KEY", "JAO_BASE_URL", "API_PORT", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "zones.yaml"), c.ZonesFile)
	assert.Equal(t, "/tmp/x.db", c.Cache.Path)
	assert.Equal(t, 5*time.Second, c.JAO.Timeout)
	assert.Equal(t, 8, c.Acquire.Workers)
	assert.Equal(t, "debug", c.Logging.Level)
	// untouched sections keep their defaults
	assert.Equal(t, data.DefaultENTSOEBaseURL, c.ENTSOE.BaseURL)
	assert.Equal(t, 8080, c.API.Port)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DB_PATH":        "/var/lib/fbmc.db",
		"ENTSOE_API_KEY": "secret",
		"JAO_BASE_URL":   "https://publicationtool.jao.eu",
		"API_PORT":       "9090",
		"LOG_LEVEL":      "warn",
	}
	c := Default()
	c.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "/var/lib/fbmc.db", c.Cache.Path)
	assert.Equal(t, "secret", c.ENTSOE.APIKey)
	assert.Equal(t, "https://publicationtool.jao.eu", c.JAO.BaseURL)
	assert.Equal(t, 9090, c.API.Port)
	assert.Equal(t, "warn", c.Logging.Level)
	assert.NoError(t, c.Validate())

	c = Default()
	c.ApplyEnv(func(k string) string {
		if k == "DB_DSN" {
			return "postgres://u@localhost/fbmc"
		}
		return ""
	})
	assert.Equal(t, cache.DriverPostgres, c.Cache.Driver)
	assert.NoError(t, c.Validate())

	c = Default()
	c.ApplyEnv(noEnv)
	assert.Equal(t, Default(), c)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero workers", func(c *Config) { c.Acquire.Workers = 0 }},
		{"bad port", func(c *Config) { c.API.Port = 70000 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad driver", func(c *Config) { c.Cache.Driver = "mysql" }},
		{"sqlite without path", func(c *Config) { c.Cache.Path = "" }},
		{"postgres without dsn", func(c *Config) { c.Cache.Driver = cache.DriverPostgres }},
		{"bad url", func(c *Config) { c.JAO.BaseURL = "not a url" }},
		{"missing zones file", func(c *Config) { c.ZonesFile = filepath.Join(t.TempDir(), "nope.yaml") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache: [oops"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestClientOptions(t *testing.T) {
	c := Default()
	c.JAO.RequestsPerSecond = 3
	jao := c.JAOClientOptions()
	assert.Equal(t, 3.0, jao.RequestsPerSecond)
	assert.True(t, jao.InsecureSkipVerify)

	ent := c.ENTSOEClientOptions()
	assert.Equal(t, 6, ent.Burst)
	assert.False(t, ent.InsecureSkipVerify)
}
