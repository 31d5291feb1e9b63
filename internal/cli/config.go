// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Configuration command handlers for pipechat.
//
// Command: config
//
// Examples:
//   pipechat config show
//   pipechat config get pipe.name
//   pipechat config set pipe.name brooklinen
//   pipechat config set server.port 9000
package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jeranaias/pipechat/internal/config"
	"github.com/jeranaias/pipechat/internal/ui/styles"
)

// HandleConfig dispatches config subcommands.
func HandleConfig(args Args) {
	switch args.Subcommand {
	case "", "show":
		handleConfigShow()
	case "get":
		handleConfigGet(args.ConfigKey)
	case "set":
		handleConfigSet(args.ConfigKey, args.ConfigVal)
	case "path":
		path, err := config.Path()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(path)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args.Subcommand)
		fmt.Fprintln(os.Stderr, "Usage: pipechat config [show|get|set|path]")
		os.Exit(1)
	}
}

func handleConfigShow() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	apiKey := "(not set)"
	if cfg.Pipe.APIKey != "" {
		apiKey = "(set)"
	}

	fmt.Println("pipe:")
	fmt.Printf("  api_key:              %s\n", apiKey)
	fmt.Printf("  base_url:             %s\n", cfg.Pipe.BaseURL)
	fmt.Printf("  name:                 %s\n", cfg.Pipe.Name)
	fmt.Printf("  memory_name:          %s\n", cfg.Pipe.MemoryName)
	fmt.Printf("  stream_timeout_secs:  %d\n", cfg.Pipe.StreamTimeoutSecs)
	fmt.Printf("  request_timeout_secs: %d\n", cfg.Pipe.RequestTimeoutSecs)
	fmt.Println("server:")
	fmt.Printf("  port:                 %d\n", cfg.Server.Port)
	fmt.Printf("  rate_limit_rps:       %g\n", cfg.Server.RateLimitRPS)
	fmt.Printf("  rate_limit_burst:     %d\n", cfg.Server.RateLimitBurst)
	fmt.Println("ui:")
	fmt.Printf("  theme:                %s\n", cfg.UI.Theme)
	fmt.Printf("  show_stats:           %t\n", cfg.UI.ShowStats)
	fmt.Printf("  plain:                %t\n", cfg.UI.Plain)
}

func handleConfigGet(key string) {
	if key == "" {
		fmt.Fprintln(os.Stderr, "Usage: pipechat config get <key>")
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	value, ok := configValue(cfg, key)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown config key: %s\n", key)
		os.Exit(1)
	}
	fmt.Println(value)
}

func handleConfigSet(key, value string) {
	if key == "" || value == "" {
		fmt.Fprintln(os.Stderr, "Usage: pipechat config set <key> <value>")
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := applyConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not save config: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(styles.RenderSuccess(fmt.Sprintf("Set %s = %s", key, value)))
}

// configValue reads a dotted config key.
func configValue(cfg *config.Config, key string) (string, bool) {
	switch key {
	case "pipe.base_url":
		return cfg.Pipe.BaseURL, true
	case "pipe.name":
		return cfg.Pipe.Name, true
	case "pipe.memory_name":
		return cfg.Pipe.MemoryName, true
	case "pipe.stream_timeout_secs":
		return strconv.Itoa(cfg.Pipe.StreamTimeoutSecs), true
	case "pipe.request_timeout_secs":
		return strconv.Itoa(cfg.Pipe.RequestTimeoutSecs), true
	case "server.port":
		return strconv.Itoa(cfg.Server.Port), true
	case "server.rate_limit_rps":
		return strconv.FormatFloat(cfg.Server.RateLimitRPS, 'g', -1, 64), true
	case "server.rate_limit_burst":
		return strconv.Itoa(cfg.Server.RateLimitBurst), true
	case "ui.theme":
		return cfg.UI.Theme, true
	case "ui.show_stats":
		return strconv.FormatBool(cfg.UI.ShowStats), true
	case "ui.plain":
		return strconv.FormatBool(cfg.UI.Plain), true
	default:
		return "", false
	}
}

// applyConfigValue writes a dotted config key.
func applyConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "pipe.api_key":
		cfg.Pipe.APIKey = value
	case "pipe.base_url":
		cfg.Pipe.BaseURL = value
	case "pipe.name":
		cfg.Pipe.Name = value
	case "pipe.memory_name":
		cfg.Pipe.MemoryName = value
	case "pipe.stream_timeout_secs":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		cfg.Pipe.StreamTimeoutSecs = n
	case "pipe.request_timeout_secs":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		cfg.Pipe.RequestTimeoutSecs = n
	case "server.port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		cfg.Server.Port = n
	case "server.rate_limit_rps":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		cfg.Server.RateLimitRPS = f
	case "server.rate_limit_burst":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		cfg.Server.RateLimitBurst = n
	case "ui.theme":
		cfg.UI.Theme = value
	case "ui.show_stats":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		cfg.UI.ShowStats = b
	case "ui.plain":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		cfg.UI.Plain = b
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}
