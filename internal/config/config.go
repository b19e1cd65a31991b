// ABOUTME: Configuration loading and parsing for wrenchd
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete wrenchd configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Data      DataConfig      `yaml:"data"`
	Auth      AuthConfig      `yaml:"auth"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds server address configuration.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DataConfig holds the store directory layout.
type DataConfig struct {
	// Dir is the directory containing the admin store and all tenant store
	// files.
	Dir string `yaml:"dir"`
	// AdminStore is the filename of the admin store within Dir.
	AdminStore string `yaml:"admin_store"`
	// DefaultTenantStore is the filename of the bootstrap/demo tenant
	// store. It is never purged by retention logic.
	DefaultTenantStore string `yaml:"default_tenant_store"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-"`

	TokenTTLRaw string `yaml:"token_ttl"`
}

// RetentionConfig controls how long soft-deleted tenant stores are kept
// before the purge job may remove them.
type RetentionConfig struct {
	Days int `yaml:"days"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RetentionEnvVar overrides retention.days when set. Used by the purge tool.
const RetentionEnvVar = "WRENCH_RETENTION_DAYS"

// DefaultRetentionDays applies when neither config nor environment set a
// retention window.
const DefaultRetentionDays = 30

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Data.AdminStore == "" {
		c.Data.AdminStore = "platform.db"
	}
	if c.Data.DefaultTenantStore == "" {
		c.Data.DefaultTenantStore = "default.db"
	}
	if c.Retention.Days == 0 {
		c.Retention.Days = DefaultRetentionDays
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// RetentionWindow returns the retention window as a duration, honoring the
// WRENCH_RETENTION_DAYS environment override.
func (c *Config) RetentionWindow() time.Duration {
	return time.Duration(c.RetentionDays()) * 24 * time.Hour
}

// RetentionDays resolves the effective retention days value.
func (c *Config) RetentionDays() int {
	if env := os.Getenv(RetentionEnvVar); env != "" {
		if days, err := strconv.Atoi(env); err == nil && days > 0 {
			return days
		}
	}
	return c.Retention.Days
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}
	if c.Data.AdminStore == c.Data.DefaultTenantStore {
		return fmt.Errorf("data.admin_store and data.default_tenant_store must differ")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Retention.Days < 0 {
		return fmt.Errorf("retention.days must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration
// values.
func parseDurations(cfg *Config) error {
	if cfg.Auth.TokenTTLRaw == "" {
		cfg.Auth.TokenTTL = 12 * time.Hour
		return nil
	}

	ttl, err := time.ParseDuration(cfg.Auth.TokenTTLRaw)
	if err != nil {
		return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
	}
	cfg.Auth.TokenTTL = ttl
	return nil
}
