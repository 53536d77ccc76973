// Package config loads the proxy configuration from a YAML file and
// applies environment-variable overrides. The core packages receive
// plain values from here and never read process state themselves.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "30s" or "1m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Pool     PoolConfig     `yaml:"pool"`
	Query    QueryConfig    `yaml:"query"`
	Server   ServerConfig   `yaml:"server"`
	LogLevel string         `yaml:"log_level"`
}

type DatabaseConfig struct {
	// Type selects the dialect: postgres, mysql, or sqlite.
	Type string `yaml:"type"`
	// URL is the connection URL (or file path for sqlite).
	URL string `yaml:"url"`
	// Schema scopes catalog introspection; postgres only.
	Schema string `yaml:"schema"`
}

type PoolConfig struct {
	MinSize        int      `yaml:"min_size"`
	MaxSize        int      `yaml:"max_size"`
	AcquireTimeout Duration `yaml:"acquire_timeout"`
}

type QueryConfig struct {
	Timeout Duration `yaml:"timeout"`
	// ForbiddenKeywords extends the validator blacklist.
	ForbiddenKeywords []string `yaml:"forbidden_keywords"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads the YAML file at configPath (optional), applies environment
// overrides, fills defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Database.Type, "DATABASE_TYPE")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Database.Schema, "DB_SCHEMA")
	setInt(&c.Pool.MinSize, "DB_POOL_MIN_SIZE")
	setInt(&c.Pool.MaxSize, "DB_POOL_MAX_SIZE")
	setDuration(&c.Pool.AcquireTimeout, "DB_POOL_TIMEOUT")
	setDuration(&c.Query.Timeout, "DB_QUERY_TIMEOUT")
	setString(&c.Server.Host, "API_HOST")
	setInt(&c.Server.Port, "API_PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	if c.Database.Type == "" {
		c.Database.Type = "postgres"
	}
	if c.Database.Schema == "" {
		c.Database.Schema = "public"
	}
	if c.Pool.MinSize == 0 {
		c.Pool.MinSize = 5
	}
	if c.Pool.MaxSize == 0 {
		c.Pool.MaxSize = 20
	}
	if c.Pool.AcquireTimeout == 0 {
		c.Pool.AcquireTimeout = Duration(30 * time.Second)
	}
	if c.Query.Timeout == 0 {
		c.Query.Timeout = Duration(30 * time.Second)
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 18790
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	switch c.Database.Type {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required for %s connection", c.Database.Type)
	}
	if c.Pool.MinSize < 1 || c.Pool.MaxSize < 1 {
		return fmt.Errorf("pool sizes must be positive")
	}
	if c.Pool.MinSize > c.Pool.MaxSize {
		return fmt.Errorf("pool min_size %d exceeds max_size %d", c.Pool.MinSize, c.Pool.MaxSize)
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
			return
		}
		// Bare numbers are seconds, matching the original deployment
		// variables.
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = Duration(time.Duration(secs * float64(time.Second)))
		}
	}
}
