// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// pipechat.
//
// Supports TOML configuration with sensible defaults, environment variable
// overrides, and validation.
//
// Configuration file location:
//   - ~/.pipechat/config.toml
//   - Built-in defaults when no file exists
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/pipechat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete pipechat configuration.
type Config struct {
	Version string `toml:"version"`

	// Pipe holds upstream provider configuration.
	Pipe PipeConfig `toml:"pipe"`

	// Server holds the local HTTP API configuration.
	Server ServerConfig `toml:"server"`

	// UI holds terminal client configuration.
	UI UIConfig `toml:"ui"`
}

// PipeConfig contains upstream pipe/memory provider configuration.
type PipeConfig struct {
	// APIKey authenticates against the provider. Required for all commands
	// that reach upstream.
	APIKey string `toml:"api_key"`
	// BaseURL is the provider endpoint.
	BaseURL string `toml:"base_url"`
	// Name is the pipe to run chat turns against.
	Name string `toml:"name"`
	// MemoryName is the document collection uploads go to.
	MemoryName string `toml:"memory_name"`
	// StreamTimeoutSecs bounds how long a single upstream turn may stream
	// before the accumulated partial is returned.
	StreamTimeoutSecs int `toml:"stream_timeout_secs"`
	// RequestTimeoutSecs bounds the whole HTTP request at the endpoint.
	// Must be greater than StreamTimeoutSecs.
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
}

// ServerConfig contains local HTTP API server configuration.
type ServerConfig struct {
	// Port the API server listens on.
	Port int `toml:"port"`
	// RateLimitRPS is the sustained per-IP request rate. 0 disables limiting.
	RateLimitRPS float64 `toml:"rate_limit_rps"`
	// RateLimitBurst is the per-IP burst allowance.
	RateLimitBurst int `toml:"rate_limit_burst"`
}

// UIConfig contains terminal client configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// ShowStats displays turn timing in the UI.
	ShowStats bool `toml:"show_stats"`
	// Plain disables the TUI and uses the line-based REPL.
	Plain bool `toml:"plain"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Pipe: PipeConfig{
			BaseURL:            "https://api.langbase.com",
			Name:               "brooklinen",
			MemoryName:         "brooklinen",
			StreamTimeoutSecs:  45,
			RequestTimeoutSecs: 55,
		},

		Server: ServerConfig{
			Port:           8098,
			RateLimitRPS:   5,
			RateLimitBurst: 10,
		},

		UI: UIConfig{
			Theme:     "dark",
			ShowStats: false,
			Plain:     false,
		},
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes a single invalid config field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ErrMissingAPIKey indicates no API key is configured.
// Commands that reach upstream treat this as fatal.
var ErrMissingAPIKey = errors.New("pipe API key not configured (set pipe.api_key or PIPECHAT_API_KEY)")

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Pipe.BaseURL != "" {
		u, err := url.Parse(c.Pipe.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &ValidationError{Field: "pipe.base_url", Message: "must be a valid URL"}
		}
	}
	if c.Pipe.Name == "" {
		return &ValidationError{Field: "pipe.name", Message: "must not be empty"}
	}
	if c.Pipe.StreamTimeoutSecs <= 0 {
		return &ValidationError{Field: "pipe.stream_timeout_secs", Message: "must be positive"}
	}
	if c.Pipe.RequestTimeoutSecs <= c.Pipe.StreamTimeoutSecs {
		return &ValidationError{
			Field:   "pipe.request_timeout_secs",
			Message: "must be greater than stream_timeout_secs",
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &ValidationError{Field: "server.port", Message: "must be between 1 and 65535"}
	}
	if c.Server.RateLimitRPS < 0 {
		return &ValidationError{Field: "server.rate_limit_rps", Message: "must not be negative"}
	}
	switch c.UI.Theme {
	case "", "dark", "light", "auto":
	default:
		return &ValidationError{Field: "ui.theme", Message: "must be dark, light, or auto"}
	}
	return nil
}

// RequireAPIKey returns ErrMissingAPIKey when no key is configured.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.Pipe.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// =============================================================================
// LOADING
// =============================================================================

// Dir returns the pipechat configuration directory (~/.pipechat).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".pipechat"), nil
}

// Path returns the config file path (~/.pipechat/config.toml).
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the configuration from the default location, applies defaults
// for missing fields, env overrides, and validates the result. A missing
// file is not an error; defaults are returned.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		cfg.fillDefaults()
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillDefaults backfills zero values left by a partial config file.
func (c *Config) fillDefaults() {
	def := Default()
	if c.Pipe.BaseURL == "" {
		c.Pipe.BaseURL = def.Pipe.BaseURL
	}
	if c.Pipe.Name == "" {
		c.Pipe.Name = def.Pipe.Name
	}
	if c.Pipe.MemoryName == "" {
		c.Pipe.MemoryName = def.Pipe.MemoryName
	}
	if c.Pipe.StreamTimeoutSecs == 0 {
		c.Pipe.StreamTimeoutSecs = def.Pipe.StreamTimeoutSecs
	}
	if c.Pipe.RequestTimeoutSecs == 0 {
		c.Pipe.RequestTimeoutSecs = def.Pipe.RequestTimeoutSecs
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.RateLimitRPS == 0 {
		c.Server.RateLimitRPS = def.Server.RateLimitRPS
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = def.Server.RateLimitBurst
	}
	if c.UI.Theme == "" {
		c.UI.Theme = def.UI.Theme
	}
}

// ApplyEnvOverrides applies PIPECHAT_* environment variables on top of the
// loaded configuration. Env always wins over the file.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PIPECHAT_API_KEY"); v != "" {
		c.Pipe.APIKey = v
	}
	if v := os.Getenv("PIPECHAT_BASE_URL"); v != "" {
		c.Pipe.BaseURL = v
	}
	if v := os.Getenv("PIPECHAT_PIPE"); v != "" {
		c.Pipe.Name = v
	}
	if v := os.Getenv("PIPECHAT_MEMORY"); v != "" {
		c.Pipe.MemoryName = v
	}
	if v := os.Getenv("PIPECHAT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to the default location with 0600
// permissions. The config directory is created if missing.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to an explicit path.
func (c *Config) SaveTo(path string) error {
	if err := util.EnsureDir(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// The key lives in this file; keep it owner-readable only.
	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// =============================================================================
// GLOBAL ACCESS
// =============================================================================

var (
	globalConfig *Config
	globalMu     sync.RWMutex
	globalOnce   sync.Once
)

// Global returns the process-wide configuration, loading it on first use.
// Load errors fall back to defaults so the caller always gets a usable config.
func Global() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: using default config: %v\n", err)
			cfg = Default()
			cfg.ApplyEnvOverrides()
		}
		globalMu.Lock()
		globalConfig = cfg
		globalMu.Unlock()
	})
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}

// SetGlobal replaces the process-wide configuration. Used by the config
// watcher on reload and by tests.
func SetGlobal(cfg *Config) {
	globalOnce.Do(func() {})
	globalMu.Lock()
	globalConfig = cfg
	globalMu.Unlock()
}
