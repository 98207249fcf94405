package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/inventorycmdb/server/internal/domain"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port int `mapstructure:"port" validate:"min=1,max=65535"`

	// Storage settings
	DataPath string `mapstructure:"data_path" validate:"required"`

	// Refresh settings
	RefreshInterval time.Duration `mapstructure:"refresh_interval" validate:"gt=0"`
	RetryInterval   time.Duration `mapstructure:"retry_interval" validate:"gt=0"`

	// Document fetch settings
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	FetchRetries int           `mapstructure:"fetch_retries" validate:"min=0,max=10"`

	// API settings
	RenderCacheSize int `mapstructure:"render_cache_size" validate:"min=1"`

	// Webhook settings, the webhook route is disabled without a secret
	WebhookSecret string `mapstructure:"webhook_secret"`
	WebhookBranch string `mapstructure:"webhook_branch"`

	// Observability
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	LogLevel     string `mapstructure:"log_level" validate:"oneof=debug info warn error"`

	// Inventories keyed by name, from the cmdb section of the config file
	Inventories map[string]InventoryConfig `mapstructure:"-"`
}

// InventoryConfig is one entry of the cmdb section
type InventoryConfig struct {
	InventoryURL  string            `yaml:"inventory_url" validate:"required,url"`
	SchemaMapping map[string]string `yaml:"schema_mapping"`
}

// fileSections holds the parts of the config file read outside viper.
// Viper lowercases map keys and inventory names are case sensitive.
type fileSections struct {
	CMDB map[string]InventoryConfig `yaml:"cmdb"`
}

var defaults = map[string]any{
	"port":              8080,
	"data_path":         "./instance",
	"refresh_interval":  6 * time.Hour,
	"retry_interval":    60 * time.Second,
	"fetch_timeout":     5 * time.Second,
	"fetch_retries":     1,
	"render_cache_size": 1000,
	"webhook_secret":    "",
	"webhook_branch":    "",
	"otlp_endpoint":     "",
	"log_level":         "info",
}

// Load reads configuration from the YAML file at path, if given, with
// environment variable overrides (PORT, DATA_PATH, REFRESH_INTERVAL, ...)
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var sections fileSections
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("invalid config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &sections); err != nil {
			return nil, fmt.Errorf("invalid cmdb section: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Inventories = sections.CMDB
	if cfg.Inventories == nil {
		cfg.Inventories = make(map[string]InventoryConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings and every configured inventory, reporting
// all problems at once
func (c *Config) Validate() error {
	validate := domain.NewValidator()
	var result *multierror.Error

	if err := validate.Struct(c); err != nil {
		result = multierror.Append(result, fmt.Errorf("invalid config: %w", err))
	}

	for _, name := range c.InventoryNames() {
		if err := validate.Var(name, "inventory_name"); err != nil {
			result = multierror.Append(result, fmt.Errorf("invalid inventory name %q", name))
		}
		if err := validate.Struct(c.Inventories[name]); err != nil {
			result = multierror.Append(result, fmt.Errorf("invalid inventory %q: %w", name, err))
		}
	}

	return result.ErrorOrNil()
}

// InventoryNames returns the configured inventory names, sorted
func (c *Config) InventoryNames() []string {
	names := make([]string, 0, len(c.Inventories))
	for name := range c.Inventories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DumpPath is where the YAML dump of the CMDB is written
func (c *Config) DumpPath() string {
	return filepath.Join(c.DataPath, "cmdb_dump.yml")
}

// CachePath is where the document cache is persisted
func (c *Config) CachePath() string {
	return filepath.Join(c.DataPath, "url_cache.yml")
}

// Level returns the slog level for LogLevel
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
