// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// setup.go - First-run wizard for pipechat.
//
// Command: setup
//
// The setup wizard walks through:
//   1. Langbase API key entry (no echo)
//   2. Pipe and memory collection names
//   3. Writing ~/.pipechat/config.toml
package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/jeranaias/pipechat/internal/config"
	"github.com/jeranaias/pipechat/internal/ui/styles"
)

// HandleSetup runs the interactive first-run wizard.
func HandleSetup(args Args) {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}

	fmt.Println(welcomeStyle.Render("pipechat setup"))
	fmt.Println(infoStyle.Render("Configure the Langbase connection. Press Enter to keep current values."))
	fmt.Println()

	// API key (no echo).
	key, err := readAPIKey(cfg.Pipe.APIKey != "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if key != "" {
		cfg.Pipe.APIKey = key
	}

	reader := bufio.NewReader(os.Stdin)

	if v := promptValue(reader, "Pipe name", cfg.Pipe.Name); v != "" {
		cfg.Pipe.Name = v
	}
	if v := promptValue(reader, "Memory collection", cfg.Pipe.MemoryName); v != "" {
		cfg.Pipe.MemoryName = v
	}
	if v := promptValue(reader, "Base URL", cfg.Pipe.BaseURL); v != "" {
		cfg.Pipe.BaseURL = v
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not save config: %v\n", err)
		os.Exit(1)
	}

	path, _ := config.Path()
	fmt.Println()
	fmt.Println(styles.RenderSuccess("Configuration saved to " + path))
	if cfg.Pipe.APIKey == "" {
		fmt.Println(styles.RenderWarning("No API key set. Set PIPECHAT_API_KEY or re-run setup."))
	}
}

// readAPIKey reads the API key without echoing it.
// Uses golang.org/x/term for secure cross-platform input.
func readAPIKey(hasExisting bool) (string, error) {
	label := "Langbase API key"
	if hasExisting {
		label += " (leave blank to keep current)"
	}
	fmt.Printf("%s: ", label)

	keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		// Not a terminal; fall back to plain input.
		reader := bufio.NewReader(os.Stdin)
		line, rerr := reader.ReadString('\n')
		if rerr != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
	return strings.TrimSpace(string(keyBytes)), nil
}

// promptValue reads one line with the current value shown as default.
func promptValue(reader *bufio.Reader, label, current string) string {
	if current != "" {
		fmt.Printf("%s [%s]: ", label, current)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}
