// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/pipechat/internal/config"
)

func TestParseArgsCommands(t *testing.T) {
	tests := []struct {
		name string
		argv []string
		want Command
	}{
		{"no args defaults to tui", nil, CmdTUI},
		{"chat", []string{"chat"}, CmdChat},
		{"serve", []string{"serve"}, CmdServe},
		{"server alias", []string{"server"}, CmdServe},
		{"upload", []string{"upload", "a.txt"}, CmdUpload},
		{"setup", []string{"setup"}, CmdSetup},
		{"config", []string{"config", "show"}, CmdConfig},
		{"version", []string{"version"}, CmdVersion},
		{"help", []string{"help"}, CmdHelp},
		{"help flag", []string{"--help"}, CmdHelp},
		{"unknown falls back to help", []string{"frobnicate"}, CmdHelp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _ := ParseArgs(tt.argv)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestParseArgsFlags(t *testing.T) {
	cmd, args := ParseArgs([]string{"serve", "--port", "9000", "-q"})
	assert.Equal(t, CmdServe, cmd)
	assert.Equal(t, 9000, args.Port)
	assert.True(t, args.Quiet)

	_, args = ParseArgs([]string{"serve", "--port=8123"})
	assert.Equal(t, 8123, args.Port)

	_, args = ParseArgs([]string{"--plain", "-v"})
	assert.True(t, args.Plain)
	assert.True(t, args.Verbose)
}

func TestParseArgsUploadFile(t *testing.T) {
	cmd, args := ParseArgs([]string{"upload", "./docs/policy.txt"})
	assert.Equal(t, CmdUpload, cmd)
	assert.Equal(t, "./docs/policy.txt", args.File)
}

func TestParseArgsConfigSet(t *testing.T) {
	cmd, args := ParseArgs([]string{"config", "set", "pipe.name", "brooklinen"})
	assert.Equal(t, CmdConfig, cmd)
	assert.Equal(t, "set", args.Subcommand)
	assert.Equal(t, "pipe.name", args.ConfigKey)
	assert.Equal(t, "brooklinen", args.ConfigVal)
}

func TestConfigValueRoundTrip(t *testing.T) {
	cfg := config.Default()

	keys := []struct {
		key   string
		value string
	}{
		{"pipe.base_url", "https://example.test"},
		{"pipe.name", "support"},
		{"pipe.memory_name", "support-kb"},
		{"pipe.stream_timeout_secs", "30"},
		{"pipe.request_timeout_secs", "40"},
		{"server.port", "9000"},
		{"server.rate_limit_rps", "2.5"},
		{"server.rate_limit_burst", "4"},
		{"ui.theme", "light"},
		{"ui.show_stats", "true"},
		{"ui.plain", "true"},
	}

	for _, k := range keys {
		t.Run(k.key, func(t *testing.T) {
			assert.NoError(t, applyConfigValue(cfg, k.key, k.value))
			got, ok := configValue(cfg, k.key)
			assert.True(t, ok)
			assert.Equal(t, k.value, got)
		})
	}
}

func TestApplyConfigValueRejectsBadInput(t *testing.T) {
	cfg := config.Default()
	assert.Error(t, applyConfigValue(cfg, "server.port", "not-a-number"))
	assert.Error(t, applyConfigValue(cfg, "ui.plain", "maybe"))
	assert.Error(t, applyConfigValue(cfg, "no.such.key", "x"))
}
