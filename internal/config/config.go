// Posterrama - Poster and Media Aggregation Server
// Copyright 2026 Posterrama Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/posterrama/posterrama

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/posterrama/posterrama/internal/logging"
	"github.com/posterrama/posterrama/internal/retry"
	"github.com/posterrama/posterrama/internal/source"
	"github.com/posterrama/posterrama/internal/source/jellyfin"
	"github.com/posterrama/posterrama/internal/source/local"
	"github.com/posterrama/posterrama/internal/source/plex"
	"github.com/posterrama/posterrama/internal/source/romm"
	"github.com/posterrama/posterrama/internal/source/tmdb"
	"github.com/posterrama/posterrama/internal/source/tvdb"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/posterrama/config.yaml",
	"/etc/posterrama/config.yml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "POSTERRAMA_CONFIG"

// envPrefix namespaces every override variable.
const envPrefix = "POSTERRAMA_"

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig         `koanf:"server" validate:"required"`
	Logging logging.Config       `koanf:"logging"`
	Retry   retry.Config         `koanf:"retry"`
	Breaker source.BreakerConfig `koanf:"circuit_breaker"`
	Sources SourcesConfig        `koanf:"sources"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit"` // requests per window per client IP
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// SourcesConfig holds every configured source instance, grouped by type.
type SourcesConfig struct {
	Plex     []plex.Config     `koanf:"plex" validate:"dive"`
	Jellyfin []jellyfin.Config `koanf:"jellyfin" validate:"dive"`
	TMDB     []tmdb.Config     `koanf:"tmdb" validate:"dive"`
	TVDB     []tvdb.Config     `koanf:"tvdb" validate:"dive"`
	RomM     []romm.Config     `koanf:"romm" validate:"dive"`
	Local    []local.Config    `koanf:"local" validate:"dive"`
}

// defaultConfig returns the built-in defaults, overridden by file then
// environment.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            4000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       300,
			RateLimitWindow: time.Minute,
		},
		Logging: logging.DefaultConfig(),
		Retry:   retry.DefaultConfig(),
		Breaker: source.DefaultBreakerConfig(),
	}
}

// Load reads configuration with layered precedence: built-in defaults,
// then an optional YAML file, then POSTERRAMA_* environment variables.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit file path; empty skips the file
// layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envTransform maps POSTERRAMA_SERVER_PORT to server.port and so on.
// Multi-word leaf keys that contain underscores themselves are covered
// by the explicit table.
func envTransform(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if mapped, ok := envKeyTable[key]; ok {
		return mapped
	}
	return strings.ReplaceAll(key, "_", ".")
}

// envKeyTable maps flat variable names to nested koanf paths when the
// naive underscore-to-dot transform would split a compound key.
var envKeyTable = map[string]string{
	"server_host":              "server.host",
	"server_port":              "server.port",
	"server_read_timeout":      "server.read_timeout",
	"server_write_timeout":     "server.write_timeout",
	"server_shutdown_timeout":  "server.shutdown_timeout",
	"server_cors_origins":      "server.cors_origins",
	"server_rate_limit":        "server.rate_limit",
	"server_rate_limit_window": "server.rate_limit_window",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"retry_max_retries": "retry.max_retries",
	"retry_base_delay":  "retry.base_delay",
	"retry_multiplier":  "retry.multiplier",
	"retry_max_delay":   "retry.max_delay",
	"retry_jitter":      "retry.jitter",

	"breaker_enabled":      "circuit_breaker.enabled",
	"breaker_max_requests": "circuit_breaker.max_requests",
	"breaker_interval":     "circuit_breaker.interval",
	"breaker_timeout":      "circuit_breaker.timeout",
}

// findConfigFile picks the config file: the env override first, then the
// default search paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Validate checks struct tags plus the cross-field rules the tags cannot
// express: instance names must be unique within a source type.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}

	if err := uniqueNames("plex", names(c.Sources.Plex, func(s plex.Config) string { return s.Name })); err != nil {
		return err
	}
	if err := uniqueNames("jellyfin", names(c.Sources.Jellyfin, func(s jellyfin.Config) string { return s.Name })); err != nil {
		return err
	}
	if err := uniqueNames("tmdb", names(c.Sources.TMDB, func(s tmdb.Config) string { return s.Name })); err != nil {
		return err
	}
	if err := uniqueNames("tvdb", names(c.Sources.TVDB, func(s tvdb.Config) string { return s.Name })); err != nil {
		return err
	}
	if err := uniqueNames("romm", names(c.Sources.RomM, func(s romm.Config) string { return s.Name })); err != nil {
		return err
	}
	if err := uniqueNames("local", names(c.Sources.Local, func(s local.Config) string { return s.Name })); err != nil {
		return err
	}
	return nil
}

func names[T any](items []T, name func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = name(it)
	}
	return out
}

func uniqueNames(sourceType string, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		key := strings.ToLower(n)
		if seen[key] {
			return fmt.Errorf("duplicate %s source name %q", sourceType, n)
		}
		seen[key] = true
	}
	return nil
}

// SourceCount returns how many source instances are configured in total.
func (c *Config) SourceCount() int {
	return len(c.Sources.Plex) + len(c.Sources.Jellyfin) + len(c.Sources.TMDB) +
		len(c.Sources.TVDB) + len(c.Sources.RomM) + len(c.Sources.Local)
}
