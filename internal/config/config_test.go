// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Greater(t, cfg.Pipe.RequestTimeoutSecs, cfg.Pipe.StreamTimeoutSecs)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad base url", func(c *Config) { c.Pipe.BaseURL = "::not-a-url" }, "pipe.base_url"},
		{"empty pipe name", func(c *Config) { c.Pipe.Name = "" }, "pipe.name"},
		{"zero stream timeout", func(c *Config) { c.Pipe.StreamTimeoutSecs = 0 }, "pipe.stream_timeout_secs"},
		{"outer not above inner", func(c *Config) { c.Pipe.RequestTimeoutSecs = c.Pipe.StreamTimeoutSecs }, "pipe.request_timeout_secs"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad theme", func(c *Config) { c.UI.Theme = "neon" }, "ui.theme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.RequireAPIKey(), ErrMissingAPIKey)

	cfg.Pipe.APIKey = "pk-test"
	assert.NoError(t, cfg.RequireAPIKey())
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Pipe.BaseURL, cfg.Pipe.BaseURL)
	assert.Equal(t, 45, cfg.Pipe.StreamTimeoutSecs)
}

func TestLoadFromPartialFileBackfills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[pipe]\nname = \"support\"\napi_key = \"pk-abc\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "support", cfg.Pipe.Name)
	assert.Equal(t, "pk-abc", cfg.Pipe.APIKey)
	// Untouched fields come from defaults.
	assert.Equal(t, 55, cfg.Pipe.RequestTimeoutSecs)
	assert.Equal(t, 8098, cfg.Server.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PIPECHAT_API_KEY", "pk-env")
	t.Setenv("PIPECHAT_PIPE", "env-pipe")
	t.Setenv("PIPECHAT_PORT", "9000")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "pk-env", cfg.Pipe.APIKey)
	assert.Equal(t, "env-pipe", cfg.Pipe.Name)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Pipe.APIKey = "pk-roundtrip"
	cfg.Server.Port = 8200
	require.NoError(t, cfg.SaveTo(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "pk-roundtrip", loaded.Pipe.APIKey)
	assert.Equal(t, 8200, loaded.Server.Port)
}
