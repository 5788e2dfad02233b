package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"fbmc-quality/internal/cache"
	"fbmc-quality/internal/data"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	// Optional: zone table YAML. Relative paths resolve against the config
	// file's directory first. Empty selects the built-in Nordic table.
	ZonesFile string `yaml:"zones_file"`

	Cache   cache.Config  `yaml:"cache"`
	JAO     JAOConfig     `yaml:"jao"`
	ENTSOE  ENTSOEConfig  `yaml:"entsoe"`
	Acquire AcquireConfig `yaml:"acquire"`
	Logging LoggingConfig `yaml:"logging"`
	API     APIConfig     `yaml:"api"`
}

type JAOConfig struct {
	BaseURL            string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout            time.Duration `yaml:"timeout" validate:"gte=0"`
	RequestsPerSecond  float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst              int           `yaml:"burst" validate:"gte=0"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	// FixturesDir, when set, serves hours from saved jao_YYYYMMDDTHH.json
	// files instead of the network.
	FixturesDir string `yaml:"fixtures_dir"`
}

type ENTSOEConfig struct {
	BaseURL           string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout" validate:"gte=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
}

type AcquireConfig struct {
	Workers      int  `yaml:"workers" validate:"gte=1,lte=64"`
	AllowPartial bool `yaml:"allow_partial"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=auto console text json"`
}

type APIConfig struct {
	Port        int      `yaml:"port" validate:"gte=1,lte=65535"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Cache: cache.Config{
			Driver:       cache.DriverSQLite,
			Path:         filepath.Join("data", "fbmc-cache.db"),
			QueryTimeout: 30 * time.Second,
		},
		JAO: JAOConfig{
			BaseURL:            data.DefaultJAOBaseURL,
			Timeout:            60 * time.Second,
			RequestsPerSecond:  2,
			Burst:              2,
			InsecureSkipVerify: true,
		},
		ENTSOE: ENTSOEConfig{
			BaseURL:           data.DefaultENTSOEBaseURL,
			Timeout:           60 * time.Second,
			RequestsPerSecond: 6,
			Burst:             6,
		},
		Acquire: AcquireConfig{Workers: 4},
		Logging: LoggingConfig{Level: "info", Format: "auto"},
		API:     APIConfig{Port: 8080, CORSOrigins: []string{"*"}},
	}
}

// Load reads, completes and validates the config. An empty path yields the
// defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads the file over the defaults and applies environment
// overrides, but does not validate. Useful for printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, c); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		c.ZonesFile = resolveRelative(path, c.ZonesFile)
		c.JAO.FixturesDir = resolveRelative(path, c.JAO.FixturesDir)
	}
	c.ApplyEnv(os.Getenv)
	return c, nil
}

// resolveRelative prefers interpreting p relative to the config file directory,
// falling back to p as given (relative to cwd) when that doesn't exist.
func resolveRelative(configPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	cand := filepath.Join(filepath.Dir(configPath), p)
	if _, err := os.Stat(cand); err == nil {
		return cand
	}
	return p
}

// ApplyEnv overlays DB_PATH, DB_DSN, ENTSOE_API_KEY, JAO_BASE_URL, API_PORT
// and LOG_LEVEL.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("DB_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := getenv("DB_DSN"); v != "" {
		c.Cache.Driver = cache.DriverPostgres
		c.Cache.DSN = v
	}
	if v := getenv("ENTSOE_API_KEY"); v != "" {
		c.ENTSOE.APIKey = v
	}
	if v := getenv("JAO_BASE_URL"); v != "" {
		c.JAO.BaseURL = v
	}
	if v := getenv("API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.API.Port = port
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	switch c.Cache.Driver {
	case "", cache.DriverSQLite:
		if c.Cache.Path == "" {
			return errors.New("cache.path is required for sqlite")
		}
	case cache.DriverPostgres:
		if c.Cache.DSN == "" {
			return errors.New("cache.dsn is required for postgres")
		}
	}
	if c.ZonesFile != "" {
		if _, err := data.LoadZones(c.ZonesFile); err != nil {
			return fmt.Errorf("zones_file invalid: %w", err)
		}
	}
	return nil
}

// JAOClientOptions converts the JAO section for the HTTP client.
func (c *Config) JAOClientOptions() data.ClientOptions {
	return data.ClientOptions{
		Timeout:            c.JAO.Timeout,
		RequestsPerSecond:  c.JAO.RequestsPerSecond,
		Burst:              c.JAO.Burst,
		InsecureSkipVerify: c.JAO.InsecureSkipVerify,
	}
}

// ENTSOEClientOptions converts the ENTSO-E section for the HTTP client.
func (c *Config) ENTSOEClientOptions() data.ClientOptions {
	return data.ClientOptions{
		Timeout:           c.ENTSOE.Timeout,
		RequestsPerSecond: c.ENTSOE.RequestsPerSecond,
		Burst:             c.ENTSOE.Burst,
	}
}
