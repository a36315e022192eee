// Package config loads YAML configuration with environment variable
// expansion, defaults, and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the downloader.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Download DownloadConfig `yaml:"download"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// APIConfig holds Eduskunta API client settings.
type APIConfig struct {
	BaseURL        string  `yaml:"base_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RatePerSecond  float64 `yaml:"rate_per_second"` // 0 = unlimited
	UserAgent      string  `yaml:"user_agent"`
}

// DatabaseConfig selects the sink. SQLite is the default; setting
// postgres_dsn switches to PostgreSQL.
type DatabaseConfig struct {
	Path           string `yaml:"path"` // SQLite file
	PostgresDSN    string `yaml:"postgres_dsn"`
	PostgresSchema string `yaml:"postgres_schema"`
}

// TableConfig overrides per-table download behavior.
type TableConfig struct {
	Name     string `yaml:"name"`
	PKColumn string `yaml:"pk_column"` // pk-ascending pagination when set
	Priority int    `yaml:"priority"`  // lower starts first
}

// DownloadConfig holds download behavior settings.
type DownloadConfig struct {
	Concurrency      int           `yaml:"concurrency"`
	PerPage          int           `yaml:"per_page"`
	ReadAhead        int           `yaml:"read_ahead"`
	RowLimit         int64         `yaml:"row_limit"` // per table, 0 = unlimited
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoffMs   int           `yaml:"retry_backoff_ms"`
	IncludeTables    []string      `yaml:"include_tables"` // glob patterns
	ExcludeTables    []string      `yaml:"exclude_tables"` // glob patterns
	Tables           []TableConfig `yaml:"tables"`         // per-table overrides
	DataDir          string        `yaml:"data_dir"`
	KeepTables       bool          `yaml:"keep_tables"`     // append to existing sink tables instead of replacing them
	SkipValidation   bool          `yaml:"skip_validation"` // trust requested table names without checking the API's table list
}

// NotifyConfig holds webhook notification settings.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Enabled    bool   `yaml:"enabled"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes reads configuration from YAML bytes. Environment variable
// references like ${EDUSKUNTA_DB} are expanded before parsing.
func LoadBytes(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// DefaultDataDir returns the default directory for state and database files.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".eduskunta-fetch")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

func (c *Config) applyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://avoindata.eduskunta.fi/api/v1"
	}
	if c.API.TimeoutSeconds == 0 {
		c.API.TimeoutSeconds = 15
	}
	if c.API.RatePerSecond == 0 {
		c.API.RatePerSecond = 10
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = "eduskunta-fetch"
	}

	if c.Download.Concurrency == 0 {
		c.Download.Concurrency = 5
	}
	if c.Download.PerPage == 0 {
		c.Download.PerPage = 100
	}
	if c.Download.ReadAhead == 0 {
		c.Download.ReadAhead = 4
	}
	if c.Download.MaxRetries == 0 {
		c.Download.MaxRetries = 3
	}
	if c.Download.RetryBackoffMs == 0 {
		c.Download.RetryBackoffMs = 500
	}

	if c.Database.PostgresSchema == "" {
		c.Database.PostgresSchema = "eduskunta"
	}
}

func (c *Config) validate() error {
	if c.API.RatePerSecond < 0 {
		return fmt.Errorf("api.rate_per_second must not be negative")
	}
	if c.Download.Concurrency < 1 {
		return fmt.Errorf("download.concurrency must be at least 1")
	}
	if c.Download.PerPage < 1 || c.Download.PerPage > 100 {
		return fmt.Errorf("download.per_page must be between 1 and 100")
	}
	if c.Download.ReadAhead < 1 {
		return fmt.Errorf("download.read_ahead must be at least 1")
	}
	if c.Download.RowLimit < 0 {
		return fmt.Errorf("download.row_limit must not be negative")
	}
	if c.Notify.Enabled && c.Notify.WebhookURL == "" {
		return fmt.Errorf("notify.webhook_url is required when notify.enabled is true")
	}
	for _, t := range c.Download.Tables {
		if t.Name == "" {
			return fmt.Errorf("download.tables entries need a name")
		}
	}
	return nil
}
