/*
Package config loads creditd settings.

PRECEDENCE (lowest to highest):
  1. DefaultConfig()
  2. TOML file (optional; missing file keeps defaults)
  3. Environment: CREDIT_DB_PATH, CREDIT_PORT, CREDIT_LOG_LEVEL
  4. Command-line flags (applied by cmd/server)

EXAMPLE:
  [server]
  host = "0.0.0.0"
  port = 8080
  allowed_origins = ["http://localhost:3000"]

  [database]
  path = "/var/lib/creditd/credit.db"

  [audit]
  enabled = true
  interval = "1h"
  stores = ["store-1"]
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Audit    AuditConfig    `toml:"audit"`
	Locale   string         `toml:"locale"`
}

type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	ReadTimeout    Duration `toml:"read_timeout"`
	WriteTimeout   Duration `toml:"write_timeout"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// AuditConfig drives the background balance audit.
type AuditConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
	Stores   []string `toml:"stores"`
}

// Duration decodes TOML strings such as "30s" or "1h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			ReadTimeout:    Duration{15 * time.Second},
			WriteTimeout:   Duration{15 * time.Second},
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Database: DatabaseConfig{Path: "credit.db"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Audit:    AuditConfig{Enabled: true, Interval: Duration{time.Hour}},
		Locale:   "en",
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path or a missing file is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("CREDIT_DB_PATH"); ok && v != "" {
		cfg.Database.Path = v
	}
	if v, ok := lookup("CREDIT_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CREDIT_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup("CREDIT_LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Audit.Enabled && c.Audit.Interval.Duration <= 0 {
		return errors.New("audit.interval must be positive when audit is enabled")
	}
	return nil
}
