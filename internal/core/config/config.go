package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level application config.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Authors  AuthorsConfig  `koanf:"authors"`
	Summary  SummaryConfig  `koanf:"summary"`
}

type ServerConfig struct {
	Port          int    `koanf:"port"`
	Host          string `koanf:"host"`
	MaxBodySizeMB int    `koanf:"max_body_size_mb"`
	Mode          string `koanf:"mode"` // debug | release
}

type DatabaseConfig struct {
	Type         string `koanf:"type"`
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
}

type AuthorsConfig struct {
	// AliasesPath points to an optional YAML file of author alias sets.
	// Empty means the built-in defaults.
	AliasesPath string `koanf:"aliases_path"`
}

type SummaryConfig struct {
	CachePath string `koanf:"cache_path"`
	// TTL is how long a cached summary stays fresh. "0" disables staleness.
	TTL string `koanf:"ttl"`
	// RefreshInterval drives the background refresh loop. Empty or "0"
	// disables it; reads then regenerate on demand.
	RefreshInterval string `koanf:"refresh_interval"`
}

// CacheTTL parses the summary TTL.
func (c SummaryConfig) CacheTTL() (time.Duration, error) {
	if c.TTL == "" || c.TTL == "0" {
		return 0, nil
	}
	return time.ParseDuration(c.TTL)
}

// RefreshEvery parses the background refresh interval. Zero disables it.
func (c SummaryConfig) RefreshEvery() (time.Duration, error) {
	if c.RefreshInterval == "" || c.RefreshInterval == "0" {
		return 0, nil
	}
	return time.ParseDuration(c.RefreshInterval)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.MaxBodySizeMB <= 0 {
		return fmt.Errorf("server.max_body_size_mb must be > 0")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be > 0")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("database.max_idle_conns must be > 0")
	}
	if c.Database.Type != "" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported database.type %q", c.Database.Type)
	}

	if strings.TrimSpace(c.Summary.CachePath) == "" {
		return fmt.Errorf("summary.cache_path is required")
	}
	if ttl, err := c.Summary.CacheTTL(); err != nil {
		return fmt.Errorf("invalid summary.ttl %q: %w", c.Summary.TTL, err)
	} else if ttl < 0 {
		return fmt.Errorf("summary.ttl must be >= 0")
	}
	if interval, err := c.Summary.RefreshEvery(); err != nil {
		return fmt.Errorf("invalid summary.refresh_interval %q: %w", c.Summary.RefreshInterval, err)
	} else if interval < 0 {
		return fmt.Errorf("summary.refresh_interval must be >= 0")
	}

	return nil
}

// Load parses config from defaults, an optional YAML file, and GROAN_
// environment variables (GROAN_SERVER__PORT=9090 overrides server.port),
// then validates the result.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":              8080,
		"server.host":              "0.0.0.0",
		"server.max_body_size_mb":  1,
		"server.mode":              "release",
		"database.type":            "postgres",
		"database.dsn":             "postgres://localhost:5432/groanboard?sslmode=disable",
		"database.max_open_conns":  25,
		"database.max_idle_conns":  25,
		"database.auto_migrate":    true,
		"authors.aliases_path":     "",
		"summary.cache_path":       "./data/summary.json",
		"summary.ttl":              "5m",
		"summary.refresh_interval": "",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("GROAN_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "GROAN_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
